package mobilemoney

import "github.com/shopspring/decimal"

type FeeTier struct {
	UpTo decimal.Decimal
	Fee  decimal.Decimal
}

// FeeSchedule is a step function over the transfer amount followed by a
// percentage with a floor above the last tier.
type FeeSchedule struct {
	Operator  Operator
	Tiers     []FeeTier
	Rate      decimal.Decimal
	Floor     decimal.Decimal
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

func (s FeeSchedule) Fee(amount decimal.Decimal) decimal.Decimal {
	for _, tier := range s.Tiers {
		if amount.LessThanOrEqual(tier.UpTo) {
			return tier.Fee
		}
	}
	fee := amount.Mul(s.Rate).Round(0)
	if fee.LessThan(s.Floor) {
		return s.Floor
	}
	return fee
}

func (s FeeSchedule) CheckLimits(amount decimal.Decimal) error {
	if amount.LessThan(s.MinAmount) || amount.GreaterThan(s.MaxAmount) {
		return &OutOfRangeError{Operator: s.Operator, Amount: amount, Min: s.MinAmount, Max: s.MaxAmount}
	}
	return nil
}

func xof(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func OrangeFees() FeeSchedule {
	return FeeSchedule{
		Operator: OperatorOrange,
		Tiers: []FeeTier{
			{UpTo: xof(1000), Fee: xof(0)},
			{UpTo: xof(2500), Fee: xof(25)},
			{UpTo: xof(5000), Fee: xof(50)},
			{UpTo: xof(10000), Fee: xof(100)},
		},
		Rate:      decimal.RequireFromString("0.02"),
		Floor:     xof(200),
		MinAmount: xof(100),
		MaxAmount: xof(1_000_000),
	}
}

func MTNFees() FeeSchedule {
	return FeeSchedule{
		Operator: OperatorMTN,
		Tiers: []FeeTier{
			{UpTo: xof(1000), Fee: xof(0)},
			{UpTo: xof(2500), Fee: xof(30)},
			{UpTo: xof(5000), Fee: xof(60)},
			{UpTo: xof(10000), Fee: xof(120)},
		},
		Rate:      decimal.RequireFromString("0.025"),
		Floor:     xof(250),
		MinAmount: xof(100),
		MaxAmount: xof(1_000_000),
	}
}

// WaveFees: Wave does not charge the sender.
func WaveFees() FeeSchedule {
	return FeeSchedule{
		Operator:  OperatorWave,
		Rate:      decimal.Zero,
		Floor:     decimal.Zero,
		MinAmount: xof(100),
		MaxAmount: xof(5_000_000),
	}
}

func FeesFor(op Operator) FeeSchedule {
	switch op {
	case OperatorOrange:
		return OrangeFees()
	case OperatorMTN:
		return MTNFees()
	default:
		return WaveFees()
	}
}
