package vesting

import "errors"

var (
	// Validation errors: rejected before any mutation.
	ErrInvalidBeneficiary = errors.New("InvalidBeneficiary")
	ErrInvalidAmount      = errors.New("InvalidAmount")
	ErrInvalidPercent     = errors.New("InvalidPercent")
	ErrInvalidTimeline    = errors.New("InvalidTimeline")
	ErrLengthMismatch     = errors.New("LengthMismatch")
	ErrInvalidAccount     = errors.New("InvalidAccount")
	ErrScheduleLimit      = errors.New("ScheduleLimit")

	// State errors: the operation is logically empty for this beneficiary.
	ErrNoSchedules       = errors.New("NoSchedules")
	ErrNothingToClaim    = errors.New("NothingToClaim")
	ErrNothingToWithdraw = errors.New("NothingToWithdraw")
)

// IsValidationError reports whether err is caller-caused bad input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidBeneficiary) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPercent) ||
		errors.Is(err, ErrInvalidTimeline) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrScheduleLimit)
}
