package domain

import "testing"

func TestSplitFee_SumsExactly(t *testing.T) {
	amounts := []int64{1, 50, 99, 2500, 5000, 10000, 999999, 99999900}
	percents := []float64{0, 1.5, 2.9, 5, 10, 12.75, 100}

	for _, amount := range amounts {
		for _, pct := range percents {
			fee, business := SplitFee(amount, pct)
			if fee+business != amount {
				t.Errorf("split of %d at %.2f%%: fee %d + business %d != amount", amount, pct, fee, business)
			}
			if fee < 0 || business < 0 {
				t.Errorf("split of %d at %.2f%%: negative part (fee %d, business %d)", amount, pct, fee, business)
			}
		}
	}
}

func TestSplitFee_StandardRate(t *testing.T) {
	// 2.9% of $50.00 is 145 cents exactly.
	fee, business := SplitFee(5000, 2.9)
	if fee != 145 {
		t.Errorf("expected 145 cent fee, got %d", fee)
	}
	if business != 4855 {
		t.Errorf("expected 4855 cent payout, got %d", business)
	}
}

func TestSplitFee_Rounding(t *testing.T) {
	tests := []struct {
		amount  int64
		percent float64
		fee     int64
	}{
		{999, 2.9, 29},   // 28.971 rounds to 29
		{100, 2.9, 3},    // 2.9 rounds to 3
		{101, 0.5, 1},    // 0.505 rounds half away from zero
		{100, 0, 0},
		{100, 100, 100},
	}
	for _, tt := range tests {
		fee, _ := SplitFee(tt.amount, tt.percent)
		if fee != tt.fee {
			t.Errorf("SplitFee(%d, %.2f): expected fee %d, got %d", tt.amount, tt.percent, tt.fee, fee)
		}
	}
}

func TestSplitRefund_ProportionalExample(t *testing.T) {
	// Refunding 30% of a $100 capture at 2.9%: the platform returns 87 cents,
	// the business adjustment covers the rest, and the parts sum exactly.
	platformRefund, businessAdjustment := SplitRefund(3000, 2.9)
	if platformRefund != 87 {
		t.Errorf("expected 87 cent platform refund, got %d", platformRefund)
	}
	if businessAdjustment != 2913 {
		t.Errorf("expected 2913 cent business adjustment, got %d", businessAdjustment)
	}
	if platformRefund+businessAdjustment != 3000 {
		t.Error("refund split must sum to the refund amount")
	}
}

func TestSplitRefund_NeverNegative(t *testing.T) {
	platformRefund, businessAdjustment := SplitRefund(-500, 2.9)
	if platformRefund != 0 || businessAdjustment != 0 {
		t.Errorf("negative refund must split to zero, got %d/%d", platformRefund, businessAdjustment)
	}
}
