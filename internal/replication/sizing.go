package replication

import (
	"fmt"
	"math"

	"copycontrol/internal/models"
)

// SizingInput carries everything ComputeFollowerQuantity needs. It is
// assembled by the coordinator; equity fields are only consulted for
// capital-proportional subscriptions.
type SizingInput struct {
	MasterQuantity float64
	SizingMode     string
	RiskRatio      float64
	FixedLotSize   float64
	FollowerEquity float64
	MasterEquity   float64
	MinIncrement   float64
}

// ComputeFollowerQuantity converts a master trade size into a follower
// size per the subscription's sizing mode. The result is floored to the
// symbol's minimum increment and never negative; 0 means the subscription
// is skipped for this event. Errors are business-rule violations.
func ComputeFollowerQuantity(in SizingInput) (float64, error) {
	if in.MasterQuantity < 0 {
		return 0, fmt.Errorf("%w: negative master quantity %v", ErrBusinessSkip, in.MasterQuantity)
	}

	var qty float64
	switch in.SizingMode {
	case models.SizingFixedRatio:
		if in.RiskRatio <= 0 {
			return 0, fmt.Errorf("%w: risk ratio %v must be positive", ErrBusinessSkip, in.RiskRatio)
		}
		qty = in.MasterQuantity * in.RiskRatio
	case models.SizingFixedLot:
		if in.FixedLotSize <= 0 {
			return 0, fmt.Errorf("%w: fixed lot size %v must be positive", ErrBusinessSkip, in.FixedLotSize)
		}
		qty = in.FixedLotSize
	case models.SizingCapitalProportional:
		if in.MasterEquity <= 0 {
			return 0, fmt.Errorf("%w: master equity %v must be positive", ErrBusinessSkip, in.MasterEquity)
		}
		if in.FollowerEquity < 0 {
			return 0, fmt.Errorf("%w: negative follower equity %v", ErrBusinessSkip, in.FollowerEquity)
		}
		qty = in.MasterQuantity * (in.FollowerEquity / in.MasterEquity)
	default:
		return 0, fmt.Errorf("%w: unknown sizing mode %q", ErrBusinessSkip, in.SizingMode)
	}

	return FloorToIncrement(qty, in.MinIncrement), nil
}

// FloorToIncrement rounds qty down to a multiple of inc. The epsilon
// absorbs float noise so e.g. 0.3/0.1 does not floor to 0.2.
func FloorToIncrement(qty, inc float64) float64 {
	if qty <= 0 {
		return 0
	}
	if inc <= 0 {
		return qty
	}
	steps := math.Floor(qty/inc + 1e-9)
	if steps <= 0 {
		return 0
	}
	return steps * inc
}
