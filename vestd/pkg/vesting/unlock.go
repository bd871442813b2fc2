package vesting

import "math/big"

// UnlockedAt computes the quantity unlocked for a schedule at the given
// time. Pure arithmetic over unsigned values:
//
//   - before the cliff only the upfront portion is unlocked
//   - at or after ramp end the full total is unlocked, exactly
//   - mid-ramp the linear portion accrues with truncating division, so the
//     last unit of the ramp becomes claimable only at now == RampEnd
func UnlockedAt(s Schedule, now uint64) uint64 {
	if now < s.CliffTime {
		return s.Upfront
	}
	if now >= s.RampEnd {
		return s.Total
	}
	if now < s.RampStart {
		// Cannot happen for schedules created by this ledger
		// (RampStart == CliffTime) but keeps elapsed from underflowing.
		return s.Upfront
	}

	// The product can exceed 64 bits for large totals over long ramps, so
	// the intermediate math is done at arbitrary precision.
	accrued := new(big.Int).SetUint64(s.Total - s.Upfront)
	accrued.Mul(accrued, new(big.Int).SetUint64(now-s.RampStart))
	accrued.Div(accrued, new(big.Int).SetUint64(s.RampEnd-s.RampStart))

	unlocked := s.Upfront + accrued.Uint64()
	if unlocked > s.Total {
		unlocked = s.Total
	}
	return unlocked
}

// claimableAt returns the unlocked-but-unclaimed quantity for a schedule,
// never negative even if the stored state is irregular.
func claimableAt(s Schedule, now uint64) uint64 {
	unlocked := UnlockedAt(s, now)
	if unlocked <= s.Claimed {
		return 0
	}
	return unlocked - s.Claimed
}

// upfrontFor computes floor(total * percent / 100).
func upfrontFor(total, percent uint64) uint64 {
	v := new(big.Int).SetUint64(total)
	v.Mul(v, new(big.Int).SetUint64(percent))
	v.Div(v, big.NewInt(100))
	return v.Uint64()
}
