package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbahn-canon/internal/query"
	"sbahn-canon/internal/store"
	"sbahn-canon/internal/timetable"
	"sbahn-canon/internal/topology"
)

func rec(trip, line, station string, minute, delay int) timetable.CanonicalRecord {
	pa := time.Date(2024, 12, 2, 8, minute, 0, 0, time.UTC)
	return timetable.CanonicalRecord{
		StopEvent:    timetable.StopEvent{TripID: trip, StationID: station, Line: line, PlannedArrival: &pa},
		ArrivalDelay: &delay,
	}
}

type fakeSubmitter struct {
	mu      sync.Mutex
	batches []timetable.Batch
}

func (f *fakeSubmitter) Submit(_ context.Context, b timetable.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	routes []string
}

func (m *recordingMetrics) QueryObserve(route string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSubmitter, *recordingMetrics) {
	t.Helper()
	m := store.NewMemory()
	_, err := m.Merge(context.Background(), []timetable.CanonicalRecord{
		rec("t1", "S1", "A", 0, 0), rec("t1", "S1", "B", 5, 2),
		rec("t2", "S1", "B", 20, 1), rec("t2", "S1", "A", 25, 0),
	})
	require.NoError(t, err)
	sub := &fakeSubmitter{}
	met := &recordingMetrics{}
	srv := httptest.NewServer(NewServer(query.NewService(m, topology.Options{}), sub, met).Router())
	t.Cleanup(srv.Close)
	return srv, sub, met
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["version"])
}

func TestLineGraph(t *testing.T) {
	srv, _, met := newTestServer(t)
	var g topology.Graph
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/lines/S1/graph", &g))
	assert.Len(t, g.Nodes, 2)
	assert.ElementsMatch(t, []topology.Edge{{Source: "A", Target: "B", Line: "S1"}, {Source: "B", Target: "A", Line: "S1"}}, g.Edges)

	require.Eventually(t, func() bool {
		met.mu.Lock()
		defer met.mu.Unlock()
		for _, r := range met.routes {
			if r == "/api/lines/{line}/graph" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestUnknownLineIsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var g topology.Graph
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/lines/S9/graph", &g))
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)

	var stats []topology.StationStat
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/lines/S9/stations", &stats))
	assert.Empty(t, stats)
}

func TestStationsAndLines(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var stats []topology.StationStat
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/lines/S1/stations", &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "A", stats[0].StationID)
	assert.Equal(t, 2, stats[0].Total.StopCount)

	var lines []topology.LineSummary
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/lines", &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "S1", lines[0].Line)
	assert.Equal(t, 2, lines[0].Trips)
}

func TestRecordsFilter(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var recs []timetable.CanonicalRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/records?trip=t2", &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "t2", recs[0].TripID)
	require.NotNil(t, recs[0].ArrivalDelay)
	assert.Equal(t, 1, *recs[0].ArrivalDelay)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/records?limit=x", nil))
}

func TestSubmitBatch(t *testing.T) {
	srv, sub, _ := newTestServer(t)
	body := `{"id":"b1","rows":[{"id":"-1-2412021200-1","eva_nr":"8000096"}]}`
	resp, err := http.Post(srv.URL+"/api/batches", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.batches, 1)
	assert.Equal(t, "b1", sub.batches[0].ID)

	resp, err = http.Post(srv.URL+"/api/batches", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitDisabled(t *testing.T) {
	srv := httptest.NewServer(NewServer(query.NewService(store.NewMemory(), topology.Options{}), nil, nil).Router())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/api/batches", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
