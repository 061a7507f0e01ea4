package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/types"
)

// HTTPClient reads yields from an external oracle service over JSON/HTTP.
// Calls go through a circuit breaker: a flapping oracle trips the breaker
// open and subsequent reads fail fast until the cool-off elapses, which the
// engine treats like any other per-venue read failure.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

type yieldResponse struct {
	Venue    string `json:"venue"`
	YieldBps uint64 `json:"yield_bps"`
}

// NewHTTPClient creates an oracle client against baseURL. Individual reads
// are bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	oracleLogger := logger.GetForComponent("yield_oracle")
	settings := gobreaker.Settings{
		Name:    "yield-oracle",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			oracleLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Oracle circuit breaker state changed")
		},
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  oracleLogger,
	}
}

// CurrentYield implements YieldOracle. Values above the yield bound are
// rejected here so a corrupt signal reads as a failure, not as data.
func (c *HTTPClient) CurrentYield(ctx context.Context, venue types.VenueAddress) (uint64, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, venue)
	})
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (c *HTTPClient) fetch(ctx context.Context, venue types.VenueAddress) (uint64, error) {
	endpoint := fmt.Sprintf("%s/v1/yields/%s", c.baseURL, url.PathEscape(string(venue)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build oracle request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle returned status %d for venue %s", resp.StatusCode, venue)
	}

	var body yieldResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if body.YieldBps > types.MaxYieldBps {
		return 0, fmt.Errorf("oracle reported yield %d bps above bound %d for venue %s",
			body.YieldBps, types.MaxYieldBps, venue)
	}

	c.logger.Debug().
		Str("venue", string(venue)).
		Uint64("yieldBps", body.YieldBps).
		Msg("Fetched yield from oracle")
	return body.YieldBps, nil
}
