package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/types"
)

// HTTPVenue talks to a venue adapter service over JSON/HTTP. Calls are
// fail-fast: any non-200 response or transport error propagates to the engine
// and aborts the operation that issued it.
type HTTPVenue struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// NewHTTPVenue creates a client for a single venue adapter endpoint.
func NewHTTPVenue(endpoint string, timeout time.Duration) *HTTPVenue {
	return &HTTPVenue{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.GetForComponent("venue_client"),
	}
}

// Deposit implements Venue.
func (v *HTTPVenue) Deposit(ctx context.Context, amount sdkmath.Int) error {
	return v.post(ctx, "/deposit", amount)
}

// Withdraw implements Venue.
func (v *HTTPVenue) Withdraw(ctx context.Context, amount sdkmath.Int) error {
	return v.post(ctx, "/withdraw", amount)
}

// Balance implements Venue.
func (v *HTTPVenue) Balance(ctx context.Context) (sdkmath.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint+"/balance", nil)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to build balance request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("venue balance request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sdkmath.ZeroInt(), fmt.Errorf("venue returned status %d for balance", resp.StatusCode)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode venue balance: %w", err)
	}
	bal, ok := sdkmath.NewIntFromString(body.Balance)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("venue returned malformed balance %q", body.Balance)
	}
	return bal, nil
}

func (v *HTTPVenue) post(ctx context.Context, path string, amount sdkmath.Int) error {
	payload, err := json.Marshal(amountRequest{Amount: amount.String()})
	if err != nil {
		return fmt.Errorf("failed to encode venue request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build venue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("venue call %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("venue returned status %d for %s", resp.StatusCode, path)
	}

	v.logger.Debug().
		Str("endpoint", v.endpoint).
		Str("path", path).
		Str("amount", amount.String()).
		Msg("Venue call completed")
	return nil
}

// HTTPDirectory resolves venue addresses to HTTP adapters using a static
// address-to-endpoint map loaded from the venue manifest.
type HTTPDirectory struct {
	mu        sync.RWMutex
	endpoints map[types.VenueAddress]string
	timeout   time.Duration
}

// NewHTTPDirectory builds a directory from the manifest's endpoint map.
func NewHTTPDirectory(endpoints map[types.VenueAddress]string, timeout time.Duration) *HTTPDirectory {
	if endpoints == nil {
		endpoints = make(map[types.VenueAddress]string)
	}
	return &HTTPDirectory{endpoints: endpoints, timeout: timeout}
}

// Lookup implements Directory.
func (d *HTTPDirectory) Lookup(addr types.VenueAddress) (Venue, error) {
	d.mu.RLock()
	endpoint, ok := d.endpoints[addr]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter endpoint configured for venue %s", addr)
	}
	return NewHTTPVenue(endpoint, d.timeout), nil
}

// Register adds or replaces the adapter endpoint for a venue.
func (d *HTTPDirectory) Register(addr types.VenueAddress, endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints[addr] = endpoint
}

// HTTPAssetToken talks to the custody service holding the engine's working
// asset balance. Same fail-fast contract as HTTPVenue.
type HTTPAssetToken struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// NewHTTPAssetToken creates a client for the custody service endpoint.
func NewHTTPAssetToken(endpoint string, timeout time.Duration) *HTTPAssetToken {
	return &HTTPAssetToken{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.GetForComponent("asset_client"),
	}
}

// Approve implements AssetToken.
func (t *HTTPAssetToken) Approve(ctx context.Context, spender types.VenueAddress, amount sdkmath.Int) error {
	return t.post(ctx, "/approve", approveRequest{Spender: string(spender), Amount: amount.String()})
}

// Transfer implements AssetToken.
func (t *HTTPAssetToken) Transfer(ctx context.Context, to string, amount sdkmath.Int) error {
	return t.post(ctx, "/transfer", transferRequest{To: to, Amount: amount.String()})
}

// Balance implements AssetToken.
func (t *HTTPAssetToken) Balance(ctx context.Context) (sdkmath.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"/balance", nil)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to build balance request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("asset balance request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sdkmath.ZeroInt(), fmt.Errorf("asset service returned status %d for balance", resp.StatusCode)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode asset balance: %w", err)
	}
	bal, ok := sdkmath.NewIntFromString(body.Balance)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("asset service returned malformed balance %q", body.Balance)
	}
	return bal, nil
}

func (t *HTTPAssetToken) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode asset request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build asset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("asset call %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset service returned status %d for %s", resp.StatusCode, path)
	}

	t.logger.Debug().Str("path", path).Msg("Asset call completed")
	return nil
}
