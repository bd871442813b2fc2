// Package vesting implements the schedule ledger at the heart of vestd: the
// unlock calculator, the claim engine, schedule creation and the recovery
// sweep. Token transfers, persistence, clock and event delivery are
// collaborators injected through narrow interfaces.
package vesting

import "context"

// Schedule is one grant of tokens to one beneficiary. Amounts are in base
// token units; times are Unix seconds.
type Schedule struct {
	// Total is the immutable quantity allocated at creation, always > 0.
	Total uint64 `json:"total"`

	// Claimed is the cumulative amount already paid out. Monotonically
	// non-decreasing, never exceeds Total.
	Claimed uint64 `json:"claimed"`

	// Upfront is the quantity unlocked immediately at creation.
	Upfront uint64 `json:"upfront"`

	// ClaimableCache mirrors "currently unlocked but unclaimed". It is
	// advisory only and maintained with saturating subtraction; the
	// authoritative value is always recomputed from timestamps.
	ClaimableCache uint64 `json:"claimable_cache"`

	// CliffTime is the timestamp before which only Upfront is obtainable.
	CliffTime uint64 `json:"cliff_time"`

	// RampStart and RampEnd bound the linear-unlock interval.
	// RampStart == CliffTime and RampStart < RampEnd, enforced at creation.
	RampStart uint64 `json:"ramp_start"`
	RampEnd   uint64 `json:"ramp_end"`
}

// Unclaimed returns Total - Claimed.
func (s Schedule) Unclaimed() uint64 {
	if s.Claimed >= s.Total {
		return 0
	}
	return s.Total - s.Claimed
}

// ScheduleStore owns the per-beneficiary schedule sequences. Sequences are
// insertion-ordered; individual schedules are never removed, only an entire
// beneficiary sequence at once.
type ScheduleStore interface {
	// Schedules returns the beneficiary's sequence in insertion order.
	// An unknown beneficiary yields an empty slice, not an error.
	Schedules(ctx context.Context, beneficiary string) ([]Schedule, error)

	// Append adds a schedule at the end of the beneficiary's sequence and
	// returns its index.
	Append(ctx context.Context, beneficiary string, s Schedule) (int, error)

	// Update replaces the schedule at the given index.
	Update(ctx context.Context, beneficiary string, index int, s Schedule) error

	// DeleteAll removes the beneficiary's entire sequence.
	DeleteAll(ctx context.Context, beneficiary string) error

	// WithinTx runs fn against a transactional view of the store. If fn
	// returns an error nothing fn did is visible afterwards.
	WithinTx(ctx context.Context, fn func(tx ScheduleStore) error) error
}

// TokenLedger is the external fungible token collaborator. A non-nil error
// is fatal to the calling operation; transfers are never retried.
type TokenLedger interface {
	// TransferInto moves amount from the given account into vesting custody.
	TransferInto(ctx context.Context, from string, amount uint64) error

	// TransferOut moves amount from vesting custody to the given account.
	TransferOut(ctx context.Context, to string, amount uint64) error
}
