package domain

import "github.com/shopspring/decimal"

// DefaultPlatformFeePercent is the marketplace cut applied when the caller
// does not override it.
const DefaultPlatformFeePercent = 2.9

// SplitFee computes the platform fee and the business payout for an amount.
// The fee is round(amount * feePercent / 100), half away from zero, and the
// two parts always sum exactly to the amount.
func SplitFee(amountCents int64, feePercent float64) (platformFeeCents, businessAmountCents int64) {
	fee := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(feePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	platformFeeCents = fee.IntPart()
	if platformFeeCents < 0 {
		platformFeeCents = 0
	}
	if platformFeeCents > amountCents {
		platformFeeCents = amountCents
	}
	return platformFeeCents, amountCents - platformFeeCents
}

// SplitRefund splits a refund amount into the platform's share and the
// business adjustment, using the same rounding rule as the original fee so
// the parts sum exactly to the refund amount. Results are never negative.
func SplitRefund(refundCents int64, feePercent float64) (platformFeeRefundCents, businessAdjustmentCents int64) {
	if refundCents <= 0 {
		return 0, 0
	}
	return SplitFee(refundCents, feePercent)
}
