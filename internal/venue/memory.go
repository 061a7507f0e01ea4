package venue

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// SimVenue is an in-memory venue used in simulation mode and in tests. It
// tracks the balance placed with it and can be forced to reject calls.
type SimVenue struct {
	mu      sync.Mutex
	balance sdkmath.Int

	// FailDeposit and FailWithdraw, when set, make the corresponding call
	// return that error without touching the balance.
	FailDeposit  error
	FailWithdraw error

	// DepositHook, when set, runs before a deposit is applied. Its error
	// aborts the deposit. Used to exercise reentrancy handling.
	DepositHook func(ctx context.Context, amount sdkmath.Int) error
}

// NewSimVenue creates an empty simulated venue.
func NewSimVenue() *SimVenue {
	return &SimVenue{balance: sdkmath.ZeroInt()}
}

// Deposit implements Venue.
func (v *SimVenue) Deposit(ctx context.Context, amount sdkmath.Int) error {
	if v.FailDeposit != nil {
		return v.FailDeposit
	}
	if v.DepositHook != nil {
		if err := v.DepositHook(ctx, amount); err != nil {
			return err
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance = v.balance.Add(amount)
	return nil
}

// Withdraw implements Venue.
func (v *SimVenue) Withdraw(_ context.Context, amount sdkmath.Int) error {
	if v.FailWithdraw != nil {
		return v.FailWithdraw
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GT(v.balance) {
		return fmt.Errorf("venue balance %s below requested withdrawal %s", v.balance, amount)
	}
	v.balance = v.balance.Sub(amount)
	return nil
}

// Balance implements Venue.
func (v *SimVenue) Balance(_ context.Context) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// SimDirectory provisions a SimVenue per address on first lookup.
type SimDirectory struct {
	mu     sync.Mutex
	venues map[types.VenueAddress]*SimVenue
}

// NewSimDirectory creates an empty directory.
func NewSimDirectory() *SimDirectory {
	return &SimDirectory{venues: make(map[types.VenueAddress]*SimVenue)}
}

// Lookup implements Directory.
func (d *SimDirectory) Lookup(addr types.VenueAddress) (Venue, error) {
	return d.Venue(addr), nil
}

// Venue returns the concrete simulated venue for addr, creating it if needed.
// Tests use this to inspect balances and inject failures.
func (d *SimDirectory) Venue(addr types.VenueAddress) *SimVenue {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.venues[addr]
	if !ok {
		v = NewSimVenue()
		d.venues[addr] = v
	}
	return v
}

// SimToken is an in-memory asset token bound to the engine's account.
type SimToken struct {
	mu      sync.Mutex
	balance sdkmath.Int

	// Transfers records every outbound transfer for assertions.
	Transfers []SimTransfer
}

// SimTransfer is one recorded outbound transfer.
type SimTransfer struct {
	To     string
	Amount sdkmath.Int
}

// NewSimToken creates a token client holding an initial engine balance.
func NewSimToken(initial sdkmath.Int) *SimToken {
	return &SimToken{balance: initial}
}

// Approve implements AssetToken. Allowances are not modelled; the simulated
// venues pull nothing.
func (t *SimToken) Approve(_ context.Context, _ types.VenueAddress, _ sdkmath.Int) error {
	return nil
}

// Transfer implements AssetToken.
func (t *SimToken) Transfer(_ context.Context, to string, amount sdkmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount.GT(t.balance) {
		return fmt.Errorf("engine balance %s below requested transfer %s", t.balance, amount)
	}
	t.balance = t.balance.Sub(amount)
	t.Transfers = append(t.Transfers, SimTransfer{To: to, Amount: amount})
	return nil
}

// Balance implements AssetToken.
func (t *SimToken) Balance(_ context.Context) (sdkmath.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance, nil
}

// Credit adds amount to the engine's simulated balance. Simulation mode uses
// it to model capital arriving from the vault.
func (t *SimToken) Credit(amount sdkmath.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance = t.balance.Add(amount)
}
