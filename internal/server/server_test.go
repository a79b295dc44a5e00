package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/ensemble"
	"github.com/agbru/hiersurr/internal/metrics"
	"github.com/agbru/hiersurr/internal/parallel"
	"github.com/agbru/hiersurr/internal/response"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + WorkersPath
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := New(":0", metrics.New(), NewHub(nil), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["workers"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, HealthPath, http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.ResponsesEmitted(response.AggregatedModels, 3)
	s := New(":0", m, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hiersurr_responses_total{mode="aggregated"} 3`)
}

func TestWorkersEndpointUnroutedWithoutHub(t *testing.T) {
	t.Parallel()
	s := New(":0", metrics.New(), nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WorkersPath, http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubDeliversAnnouncementsInOrder(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil)
	srv := httptest.NewServer(New(":0", metrics.New(), hub, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	in, err := DialWorker(ctx, wsURL(srv))
	require.NoError(t, err)
	require.NoError(t, hub.WaitForClients(ctx, 1))

	coord := parallel.NewCoordinator(hub)
	lo := activekey.New(0, 0, activekey.NoLevel)
	hi := activekey.New(0, 1, activekey.NoLevel)
	require.NoError(t, coord.Activate(ctx, parallel.TruthActive, response.AggregatedModels, hi))
	require.NoError(t, coord.Activate(ctx, parallel.SurrogateActive, response.AggregatedModels, lo))
	require.NoError(t, coord.Shutdown(ctx))

	var got []parallel.Announcement
	for a := range in {
		got = append(got, a)
		if a.State == parallel.Idle && !a.Stop {
			break
		}
	}
	require.Len(t, got, 5)
	for i, a := range got {
		assert.EqualValues(t, i+1, a.Seq)
		assert.Equal(t, coord.RunID().String(), a.RunID)
	}
	assert.Equal(t, parallel.TruthActive, got[0].State)
	assert.True(t, got[1].Stop)
	assert.Equal(t, 1, got[1].Form)
	assert.Equal(t, parallel.SurrogateActive, got[2].State)
	assert.True(t, got[3].Stop)
	assert.Equal(t, parallel.Idle, got[4].State)
}

func TestRemoteWorkerFollowsHub(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil)
	srv := httptest.NewServer(New(":0", metrics.New(), hub, nil).Handler())
	defer srv.Close()

	constant := func(v float64) ensemble.Func {
		return func(_ context.Context, _ int, _ response.Variables, set response.ActiveSet) (*response.Response, error) {
			r := response.New(set)
			r.Values[0] = v
			return r, nil
		}
	}
	ens, err := ensemble.New(
		ensemble.NewLocalModel("lo", constant(1), ensemble.LocalOptions{NumFunctions: 1}),
		ensemble.NewLocalModel("hi", constant(2), ensemble.LocalOptions{NumFunctions: 1}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	in, err := DialWorker(ctx, wsURL(srv))
	require.NoError(t, err)
	require.NoError(t, hub.WaitForClients(ctx, 1))

	w := parallel.NewWorker("remote", ens, nil)
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx, in) }()

	coord := parallel.NewCoordinator(hub)
	require.NoError(t, coord.Activate(ctx, parallel.TruthActive, response.BypassSurrogate, activekey.New(0, 1, activekey.NoLevel)))
	require.NoError(t, coord.Shutdown(ctx))
	require.NoError(t, <-done)
	assert.Equal(t, parallel.Idle, w.State())
}

func TestHubCloseDisconnectsWorkers(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	in, err := DialWorker(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	require.NoError(t, hub.WaitForClients(ctx, 1))

	hub.Close()
	assert.Zero(t, hub.Clients())
	_, open := <-in
	assert.False(t, open)
	assert.NoError(t, hub.Broadcast(ctx, parallel.Announcement{State: parallel.Idle}))
}
