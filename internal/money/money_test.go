package money

import (
	"math"
	"testing"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in      float64
		want    int64
		wantErr bool
	}{
		{0, 0, false},
		{49.99, 4999, false},
		{100.00, 10000, false},
		{0.01, 1, false},
		{0.005, 1, false}, // half rounds away from zero
		{-1, 0, true},
		{10_000_000.00, 0, true}, // at the ceiling
	}
	for _, c := range cases {
		got, err := ToMinorUnits(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ToMinorUnits(%v): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ToMinorUnits(%v): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ToMinorUnits(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestToMinorUnitsRejectsNonFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := ToMinorUnits(in); err == nil {
			t.Errorf("ToMinorUnits(%v): expected error", in)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// every representable two-decimal amount survives the round trip
	for minor := int64(0); minor < 1_000_000; minor += 37 {
		dec := ToDecimal(minor)
		back, err := ToMinorUnits(dec)
		if err != nil {
			t.Fatalf("round trip %d: %v", minor, err)
		}
		if back != minor {
			t.Fatalf("round trip %d -> %v -> %d", minor, dec, back)
		}
	}
}

func TestApplyFeeBps(t *testing.T) {
	cases := []struct {
		amount, bps, want int64
	}{
		{10000, 40, 40}, // 0.40% of 100.00
		{333, 250, 8},   // 8.325 rounds to 8
		{4999, 40, 20},  // 19.996 rounds up
		{100, 0, 0},
		{100, -50, 0}, // negative bps clamps
		{0, 250, 0},
		{1, 5000, 1}, // 0.5 rounds away from zero
	}
	for _, c := range cases {
		if got := ApplyFeeBps(c.amount, c.bps); got != c.want {
			t.Errorf("ApplyFeeBps(%d, %d) = %d, want %d", c.amount, c.bps, got, c.want)
		}
	}
}
