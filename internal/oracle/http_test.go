package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/lumenyield/aggregator/internal/types"
)

func TestHTTPClientCurrentYield(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/yields/venue-a", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"venue":"venue-a","yield_bps":750}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	yieldBps, err := client.CurrentYield(context.Background(), types.VenueAddress("venue-a"))
	require.NoError(t, err)
	require.Equal(t, uint64(750), yieldBps)
}

func TestHTTPClientRejectsOutOfBoundYield(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"venue":"venue-a","yield_bps":%d}`, types.MaxYieldBps+1)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.CurrentYield(context.Background(), types.VenueAddress("venue-a"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "above bound")
}

func TestHTTPClientPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.CurrentYield(context.Background(), types.VenueAddress("venue-a"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestHTTPClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	for i := 0; i < 5; i++ {
		_, err := client.CurrentYield(context.Background(), types.VenueAddress("venue-a"))
		require.Error(t, err)
	}
	require.Equal(t, int64(5), hits.Load())

	// Breaker is open: the next read fails fast without reaching the oracle.
	_, err := client.CurrentYield(context.Background(), types.VenueAddress("venue-a"))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, int64(5), hits.Load())
}

func TestStaticOracle(t *testing.T) {
	s := NewStatic()
	venue := types.VenueAddress("venue-a")

	_, err := s.CurrentYield(context.Background(), venue)
	require.ErrorIs(t, err, ErrUnknownVenue)

	s.Set(venue, 420)
	yieldBps, err := s.CurrentYield(context.Background(), venue)
	require.NoError(t, err)
	require.Equal(t, uint64(420), yieldBps)

	s.Fail(venue, ErrUnknownVenue)
	_, err = s.CurrentYield(context.Background(), venue)
	require.Error(t, err)

	// Setting a fresh value clears the forced failure.
	s.Set(venue, 430)
	yieldBps, err = s.CurrentYield(context.Background(), venue)
	require.NoError(t, err)
	require.Equal(t, uint64(430), yieldBps)
}
