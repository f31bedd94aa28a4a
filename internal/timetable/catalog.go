package timetable

import "strings"

// DefaultLines are the Stuttgart S-Bahn service codes.
var DefaultLines = []string{"S1", "S2", "S3", "S4", "S5", "S6", "S11", "S60", "S62"}

// DefaultDenylist holds long-distance, regional and bus categories whose
// trips never enter the canonical store.
var DefaultDenylist = []string{
	"Bus", "BusEV", "ICE", "TGV", "WEGRB47", "MEX18", "MEX16", "MEX13",
	"MEX12", "D", "RB14b", "RE40", "RJ", "MEX", "MEX17a", "RE", "MEX90",
	"WEGRB46", "FLX", "DBK", "FLX10", "RJX", "SVG", "RB8", "NJ", "EN",
	"MEX17c", "MEX19", "IRE200", "RE14a", "RE14b", "IRE6", "IRE", "RB54",
	"WEG", "RE4", "IRE1", "RE5", "RE90", "RE87", "RB63", "RE8", "IC", "IRE8", "IC87",
	"RB14a", "RE1", "RB", "RB11", "RB64",
}

// Catalog is the closed set of canonical lines plus the denylist and the
// station name table used to fill missing names.
type Catalog struct {
	lines    map[string]struct{}
	order    []string
	denied   map[string]struct{}
	stations map[string]string
}

func NewCatalog(lines, denylist []string, stations map[string]string) *Catalog {
	c := &Catalog{
		lines:    make(map[string]struct{}, len(lines)),
		denied:   make(map[string]struct{}, len(denylist)),
		stations: make(map[string]string, len(stations)),
	}
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || l == Unknown {
			continue
		}
		if _, ok := c.lines[l]; ok {
			continue
		}
		c.lines[l] = struct{}{}
		c.order = append(c.order, l)
	}
	for _, d := range denylist {
		c.denied[strings.TrimSpace(d)] = struct{}{}
	}
	for id, name := range stations {
		c.stations[id] = name
	}
	return c
}

// DefaultCatalog returns the built-in catalog without station names.
func DefaultCatalog() *Catalog { return NewCatalog(DefaultLines, DefaultDenylist, nil) }

// IsCanonical reports whether guess is one of the catalog lines.
func (c *Catalog) IsCanonical(guess string) bool {
	_, ok := c.lines[guess]
	return ok
}

// Denied reports whether guess belongs to an excluded service type.
func (c *Catalog) Denied(guess string) bool {
	_, ok := c.denied[guess]
	return ok
}

// Canonicalize maps a raw guess to itself or Unknown.
func (c *Catalog) Canonicalize(guess string) string {
	if c.IsCanonical(guess) {
		return guess
	}
	return Unknown
}

// StationName returns the catalog name for a station id, if any.
func (c *Catalog) StationName(id string) (string, bool) {
	n, ok := c.stations[id]
	return n, ok
}

// Lines returns the canonical lines in declaration order.
func (c *Catalog) Lines() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
