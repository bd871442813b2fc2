package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxSchedules caps the number of schedules per beneficiary so claim
// and recovery stay bounded.
const DefaultMaxSchedules = 100

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  ScheduleStore
	Token  TokenLedger
	Events EventSink

	// Administrator is the account allowed to create schedules and run
	// recovery; it is also the account schedule funding is drawn from.
	Administrator string

	// RecoveryAccount receives swept balances.
	RecoveryAccount string

	// MaxSchedules limits schedules per beneficiary. Zero means
	// DefaultMaxSchedules.
	MaxSchedules int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("schedule store is required")
	}
	if cfg.Token == nil {
		return fmt.Errorf("token ledger is required")
	}
	if cfg.Administrator == "" {
		return fmt.Errorf("administrator account is required")
	}
	if cfg.RecoveryAccount == "" {
		return fmt.Errorf("recovery account is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = NewLogSink(cfg.Logger)
	}
	if cfg.MaxSchedules <= 0 {
		cfg.MaxSchedules = DefaultMaxSchedules
	}
	return nil
}

// Service is the vesting ledger. All mutating operations are serialized
// under one mutex: the single-writer model is the reentrancy guard, and all
// bookkeeping is finalized inside the store transaction before any result is
// visible. Events are emitted after the locked section, so a slow sink never
// stalls the ledger.
type Service struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock
	store ScheduleStore
	token TokenLedger
	sink  EventSink

	mu              sync.Mutex
	administrator   string
	recoveryAccount string
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		log:             cfg.Logger,
		cfg:             cfg,
		clock:           cfg.Clock,
		store:           cfg.Store,
		token:           cfg.Token,
		sink:            cfg.Events,
		administrator:   cfg.Administrator,
		recoveryAccount: cfg.RecoveryAccount,
	}, nil
}

// Administrator returns the current administrator account.
func (s *Service) Administrator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.administrator
}

// RecoveryAccount returns the current recovery account.
func (s *Service) RecoveryAccount() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoveryAccount
}

// SetAdministrator changes the administrator account.
func (s *Service) SetAdministrator(ctx context.Context, account string) error {
	if account == "" {
		return ErrInvalidAccount
	}
	s.mu.Lock()
	s.administrator = account
	s.mu.Unlock()

	s.log.Info("vesting: administrator changed", "account", account)
	s.emit(ctx, Event{Type: EventAdministratorChanged, Account: account})
	return nil
}

// SetRecoveryAccount changes the account swept balances are sent to.
func (s *Service) SetRecoveryAccount(ctx context.Context, account string) error {
	if account == "" {
		return ErrInvalidAccount
	}
	s.mu.Lock()
	s.recoveryAccount = account
	s.mu.Unlock()

	s.log.Info("vesting: recovery account changed", "account", account)
	s.emit(ctx, Event{Type: EventRecoveryAccountChanged, Account: account})
	return nil
}

// Schedules returns the beneficiary's schedules in insertion order.
func (s *Service) Schedules(ctx context.Context, beneficiary string) ([]Schedule, error) {
	if beneficiary == "" {
		return nil, ErrInvalidBeneficiary
	}
	return s.store.Schedules(ctx, beneficiary)
}

// grant is one validated schedule-creation entry.
type grant struct {
	beneficiary string
	total       uint64
	upfront     uint64
	cliff       uint64
	rampEnd     uint64
}

func validateGrant(beneficiary string, total, upfrontPercent, cliff, rampEnd uint64) (grant, error) {
	if beneficiary == "" {
		return grant{}, ErrInvalidBeneficiary
	}
	if total == 0 {
		return grant{}, fmt.Errorf("%w: total must be positive for %s", ErrInvalidAmount, beneficiary)
	}
	if upfrontPercent > 100 {
		return grant{}, fmt.Errorf("%w: upfront percent %d exceeds 100", ErrInvalidPercent, upfrontPercent)
	}
	if cliff >= rampEnd {
		return grant{}, fmt.Errorf("%w: cliff %d is not before ramp end %d", ErrInvalidTimeline, cliff, rampEnd)
	}
	return grant{
		beneficiary: beneficiary,
		total:       total,
		upfront:     upfrontFor(total, upfrontPercent),
		cliff:       cliff,
		rampEnd:     rampEnd,
	}, nil
}

// CreateSchedule validates and commits one schedule, drawing total from the
// administrator account into custody. Returns the new schedule's index in
// the beneficiary's sequence. Nothing is recorded if the funding transfer
// fails.
func (s *Service) CreateSchedule(ctx context.Context, beneficiary string, total, upfrontPercent, cliff, rampEnd uint64) (int, error) {
	g, err := validateGrant(beneficiary, total, upfrontPercent, cliff, rampEnd)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	var index int
	err = s.store.WithinTx(ctx, func(tx ScheduleStore) error {
		var err error
		index, err = s.appendGrant(ctx, tx, g)
		if err != nil {
			return err
		}
		// Funding is the last step inside the transaction: if it fails the
		// appended schedule is rolled back with it.
		if err := s.token.TransferInto(ctx, s.administrator, g.total); err != nil {
			return fmt.Errorf("funding transfer failed: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.log.Info("vesting: schedule created",
		"beneficiary", g.beneficiary,
		"index", index,
		"total", g.total,
		"upfront", g.upfront,
		"cliff", g.cliff,
		"ramp_end", g.rampEnd,
	)
	s.emit(ctx, Event{Type: EventScheduleCreated, Beneficiary: g.beneficiary, Amount: g.total})
	return index, nil
}

// CreateScheduleBatch commits schedules for parallel slices of equal length,
// all-or-nothing. Every entry is validated before any transfer or append, so
// a bad entry creates zero schedules.
func (s *Service) CreateScheduleBatch(ctx context.Context, beneficiaries []string, totals, upfrontPercents, cliffs, rampEnds []uint64) ([]int, error) {
	n := len(beneficiaries)
	if len(totals) != n || len(upfrontPercents) != n || len(cliffs) != n || len(rampEnds) != n {
		return nil, fmt.Errorf("%w: %d beneficiaries, %d totals, %d percents, %d cliffs, %d ramp ends",
			ErrLengthMismatch, n, len(totals), len(upfrontPercents), len(cliffs), len(rampEnds))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidAmount)
	}

	grants := make([]grant, n)
	for i := range beneficiaries {
		g, err := validateGrant(beneficiaries[i], totals[i], upfrontPercents[i], cliffs[i], rampEnds[i])
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		grants[i] = g
	}

	var funding uint64
	for i, g := range grants {
		if funding+g.total < funding {
			return nil, fmt.Errorf("%w: batch funding total overflows at entry %d", ErrInvalidAmount, i)
		}
		funding += g.total
	}

	s.mu.Lock()
	indexes := make([]int, n)
	err := s.store.WithinTx(ctx, func(tx ScheduleStore) error {
		for i, g := range grants {
			index, err := s.appendGrant(ctx, tx, g)
			if err != nil {
				return fmt.Errorf("batch entry %d: %w", i, err)
			}
			indexes[i] = index
		}
		// One aggregate funding transfer for the whole batch, last, so a
		// failed transfer rolls back every appended schedule.
		if err := s.token.TransferInto(ctx, s.administrator, funding); err != nil {
			return fmt.Errorf("funding transfer failed: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info("vesting: schedule batch created", "count", n)
	for _, g := range grants {
		s.emit(ctx, Event{Type: EventScheduleCreated, Beneficiary: g.beneficiary, Amount: g.total})
	}
	return indexes, nil
}

// appendGrant appends one schedule inside a store transaction. Callers hold
// the service mutex and fund the grant afterwards.
func (s *Service) appendGrant(ctx context.Context, tx ScheduleStore, g grant) (int, error) {
	existing, err := tx.Schedules(ctx, g.beneficiary)
	if err != nil {
		return 0, fmt.Errorf("failed to read schedules for %s: %w", g.beneficiary, err)
	}
	if len(existing) >= s.cfg.MaxSchedules {
		return 0, fmt.Errorf("%w: beneficiary %s already has %d schedules", ErrScheduleLimit, g.beneficiary, len(existing))
	}

	index, err := tx.Append(ctx, g.beneficiary, Schedule{
		Total:          g.total,
		Claimed:        0,
		Upfront:        g.upfront,
		ClaimableCache: g.upfront,
		CliffTime:      g.cliff,
		RampStart:      g.cliff,
		RampEnd:        g.rampEnd,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append schedule for %s: %w", g.beneficiary, err)
	}
	return index, nil
}

// Claim pays out everything currently unlocked across the beneficiary's
// schedules. Bookkeeping is finalized before the outbound transfer, and the
// whole operation is rolled back if the transfer fails.
func (s *Service) Claim(ctx context.Context, beneficiary string) (uint64, error) {
	if beneficiary == "" {
		return 0, ErrInvalidBeneficiary
	}

	s.mu.Lock()
	now := uint64(s.clock.Now().Unix())
	var total uint64
	err := s.store.WithinTx(ctx, func(tx ScheduleStore) error {
		schedules, err := tx.Schedules(ctx, beneficiary)
		if err != nil {
			return fmt.Errorf("failed to read schedules for %s: %w", beneficiary, err)
		}
		if len(schedules) == 0 {
			return ErrNoSchedules
		}

		total = 0
		for i, sched := range schedules {
			due := claimableAt(sched, now)
			if due == 0 {
				continue
			}
			if total+due < total {
				return fmt.Errorf("claimable total overflows for %s at schedule %d", beneficiary, i)
			}
			sched.Claimed += due
			// Saturating: the cache is advisory and may have drifted low.
			if sched.ClaimableCache > due {
				sched.ClaimableCache -= due
			} else {
				sched.ClaimableCache = 0
			}
			if err := tx.Update(ctx, beneficiary, i, sched); err != nil {
				return fmt.Errorf("failed to update schedule %d for %s: %w", i, beneficiary, err)
			}
			total += due
		}
		if total == 0 {
			return ErrNothingToClaim
		}

		if err := s.token.TransferOut(ctx, beneficiary, total); err != nil {
			return fmt.Errorf("payout transfer failed: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.log.Info("vesting: claimed", "beneficiary", beneficiary, "amount", total)
	s.emit(ctx, Event{Type: EventClaimed, Beneficiary: beneficiary, Amount: total})
	return total, nil
}

// PreviewClaimable computes what Claim would pay out right now, without
// mutating anything. Unknown beneficiaries preview as zero.
func (s *Service) PreviewClaimable(ctx context.Context, beneficiary string) (uint64, error) {
	if beneficiary == "" {
		return 0, ErrInvalidBeneficiary
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := uint64(s.clock.Now().Unix())
	schedules, err := s.store.Schedules(ctx, beneficiary)
	if err != nil {
		return 0, fmt.Errorf("failed to read schedules for %s: %w", beneficiary, err)
	}

	var total uint64
	for _, sched := range schedules {
		total += claimableAt(sched, now)
	}
	return total, nil
}

// Recover irreversibly sweeps the beneficiary's entire unclaimed balance,
// locked or not, to the recovery account. The schedule sequence is cleared
// inside the transaction before the transfer, so nothing stale is ever
// claimable again.
func (s *Service) Recover(ctx context.Context, beneficiary string) (uint64, error) {
	if beneficiary == "" {
		return 0, ErrInvalidBeneficiary
	}

	s.mu.Lock()
	recoveryAccount := s.recoveryAccount
	var total uint64
	err := s.store.WithinTx(ctx, func(tx ScheduleStore) error {
		schedules, err := tx.Schedules(ctx, beneficiary)
		if err != nil {
			return fmt.Errorf("failed to read schedules for %s: %w", beneficiary, err)
		}
		if len(schedules) == 0 {
			return ErrNoSchedules
		}

		if err := tx.DeleteAll(ctx, beneficiary); err != nil {
			return fmt.Errorf("failed to clear schedules for %s: %w", beneficiary, err)
		}

		total = 0
		for i, sched := range schedules {
			unclaimed := sched.Unclaimed()
			if total+unclaimed < total {
				return fmt.Errorf("unclaimed total overflows for %s at schedule %d", beneficiary, i)
			}
			total += unclaimed
		}
		if total == 0 {
			return ErrNothingToWithdraw
		}

		if err := s.token.TransferOut(ctx, recoveryAccount, total); err != nil {
			return fmt.Errorf("recovery transfer failed: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.log.Info("vesting: recovered", "beneficiary", beneficiary, "amount", total, "recovery_account", recoveryAccount)
	s.emit(ctx, Event{Type: EventRecovered, Beneficiary: beneficiary, Amount: total, Account: recoveryAccount})
	return total, nil
}

// emit runs outside the service mutex. Callers must have committed all
// state before emitting.
func (s *Service) emit(ctx context.Context, ev Event) {
	ev.ID = uuid.New()
	ev.At = s.clock.Now()
	s.sink.Emit(ctx, ev)
}
