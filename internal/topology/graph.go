// Package topology infers per-line directed station graphs and
// direction-aware station statistics from the canonical store. Nothing here
// mutates its input; every call recomputes from the records it is given.
package topology

import (
	"sort"

	"sbahn-canon/internal/timetable"
)

// DefaultNodeThreshold is the visit count a station must exceed to become a
// graph node.
const DefaultNodeThreshold = 10

type Options struct {
	NodeThreshold int
}

type Node struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	VisitCount int      `json:"visit_count"`
	Lines      []string `json:"lines"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Line   string `json:"line"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// LineGraph is the graph of one line together with the ordering and
// direction data it was derived from.
type LineGraph struct {
	Graph
	Line          string               `json:"line"`
	ReferenceTrip string               `json:"reference_trip"`
	Order         []string             `json:"order"`
	Directions    map[string]Direction `json:"-"`
}

type stationInfo struct {
	id       string
	name     string
	visits   int
	lines    map[string]struct{}
	firstSeq int
}

func (s *stationInfo) node() Node {
	lines := make([]string, 0, len(s.lines))
	for l := range s.lines {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return Node{ID: s.id, Name: s.name, VisitCount: s.visits, Lines: lines}
}

// stations tallies visits over every record in the store, whatever its line
// or timestamps.
func stations(records []timetable.CanonicalRecord) map[string]*stationInfo {
	out := make(map[string]*stationInfo)
	for i, r := range records {
		s, ok := out[r.StationID]
		if !ok {
			s = &stationInfo{id: r.StationID, lines: make(map[string]struct{}), firstSeq: i}
			out[r.StationID] = s
		}
		if s.name == "" {
			s.name = r.StationName
		}
		s.visits++
		s.lines[r.Line] = struct{}{}
	}
	return out
}

func isNode(info map[string]*stationInfo, id string, threshold int) bool {
	s, ok := info[id]
	return ok && s.visits > threshold
}

// Build infers the graph of one line. It reports false when the line has no
// trip to anchor the canonical order.
func Build(records []timetable.CanonicalRecord, line string, opts Options) (*LineGraph, bool) {
	return build(records, stations(records), line, opts)
}

func build(records []timetable.CanonicalRecord, info map[string]*stationInfo, line string, opts Options) (*LineGraph, bool) {
	trips := lineTrips(records, line)
	ref := referenceTrip(trips)
	if ref == nil {
		return nil, false
	}
	order := canonicalOrder(ref)
	g := &LineGraph{
		Line:          line,
		ReferenceTrip: ref.id,
		Order:         order,
		Directions:    classify(trips, order),
		Graph:         Graph{Nodes: []Node{}, Edges: []Edge{}},
	}

	for _, id := range lineStations(records, line, order) {
		if isNode(info, id, opts.NodeThreshold) {
			g.Nodes = append(g.Nodes, info[id].node())
		}
	}
	if len(order) < 2 {
		return g, true
	}

	type key struct{ src, dst string }
	seen := make(map[key]bool)
	for _, t := range trips {
		for i := 0; i+1 < len(t.stops); i++ {
			src, dst := t.stops[i].station, t.stops[i+1].station
			if src == dst {
				continue
			}
			if !isNode(info, src, opts.NodeThreshold) || !isNode(info, dst, opts.NodeThreshold) {
				continue
			}
			k := key{src, dst}
			if seen[k] {
				continue
			}
			seen[k] = true
			g.Edges = append(g.Edges, Edge{Source: src, Target: dst, Line: line})
		}
	}
	return g, true
}

// lineStations lists every station the line touches: canonical order first,
// then the rest by first appearance in the store.
func lineStations(records []timetable.CanonicalRecord, line string, order []string) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(order))
	for _, id := range order {
		seen[id] = true
		out = append(out, id)
	}
	for _, r := range records {
		if r.Line != line || seen[r.StationID] {
			continue
		}
		seen[r.StationID] = true
		out = append(out, r.StationID)
	}
	return out
}

// Lines returns the distinct lines in the records, sorted, Unknown last.
func Lines(records []timetable.CanonicalRecord) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		set[r.Line] = struct{}{}
	}
	out := make([]string, 0, len(set))
	hasUnknown := false
	for l := range set {
		if l == timetable.Unknown {
			hasUnknown = true
			continue
		}
		out = append(out, l)
	}
	sort.Strings(out)
	if hasUnknown {
		out = append(out, timetable.Unknown)
	}
	return out
}

// Network merges the graphs of every canonical line over the global node
// set. Unknown trips contribute visits but no edges.
func Network(records []timetable.CanonicalRecord, opts Options) Graph {
	info := stations(records)
	g := Graph{Nodes: []Node{}, Edges: []Edge{}}

	ids := make([]*stationInfo, 0, len(info))
	for _, s := range info {
		if s.visits > opts.NodeThreshold {
			ids = append(ids, s)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].firstSeq < ids[j].firstSeq })
	for _, s := range ids {
		g.Nodes = append(g.Nodes, s.node())
	}

	for _, line := range Lines(records) {
		if line == timetable.Unknown {
			continue
		}
		lg, ok := build(records, info, line, opts)
		if !ok {
			continue
		}
		g.Edges = append(g.Edges, lg.Edges...)
	}
	return g
}
