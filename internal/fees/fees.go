// Package fees computes MDR fee splits for a single transaction.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveAmount marks a transaction that is skipped, not failed.
	ErrNonPositiveAmount = errors.New("non_positive_amount")
	// ErrNegativeMargin marks a scheme whose distributor rate exceeds the
	// retailer rate. The transaction fails; the margin is never clamped.
	ErrNegativeMargin = errors.New("negative_margin_config")
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the fee split for one transaction. Fees and margin carry four
// decimal places; the retailer net amount is a payable rounded to two.
type Breakdown struct {
	RetailerFee       decimal.Decimal
	DistributorFee    decimal.Decimal
	DistributorMargin decimal.Decimal
	CompanyEarning    decimal.Decimal
	RetailerNet       decimal.Decimal
}

// Compute derives the fee split from a gross amount and the two MDR
// percentages of the resolved scheme. It never touches storage.
func Compute(amount, retailerMDR, distributorMDR decimal.Decimal) (Breakdown, error) {
	if !amount.IsPositive() {
		return Breakdown{}, ErrNonPositiveAmount
	}

	retailerFee := amount.Mul(retailerMDR).Div(hundred).Round(4)
	distributorFee := amount.Mul(distributorMDR).Div(hundred).Round(4)

	margin := retailerFee.Sub(distributorFee).Round(4)
	if margin.IsNegative() {
		return Breakdown{}, ErrNegativeMargin
	}

	return Breakdown{
		RetailerFee:       retailerFee,
		DistributorFee:    distributorFee,
		DistributorMargin: margin,
		// The distributor-side fee flows to the top of the chain until a
		// dedicated company rate is configured per scheme.
		CompanyEarning: distributorFee,
		RetailerNet:    amount.Sub(retailerFee).Round(2),
	}, nil
}
