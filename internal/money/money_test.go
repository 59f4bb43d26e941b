package money

import (
	"math"
	"testing"
)

func TestToMinorScalesMajorUnits(t *testing.T) {
	cases := []struct {
		name         string
		value        int64
		alreadyMinor bool
		want         Minor
	}{
		{"major units below threshold", 5000, false, 500000},
		{"at threshold passes through", 1_000_000, false, 1_000_000},
		{"above threshold passes through", 1_500_000, false, 1_500_000},
		{"already minor never scales", 5000, true, 5000},
		{"zero", 0, false, 0},
		{"negative major units", -5000, false, -500000},
		{"negative already minor magnitude", -2_000_000, false, -2_000_000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToMinor(tc.value, tc.alreadyMinor)
			if got != tc.want {
				t.Fatalf("ToMinor(%d, %v) = %d, want %d", tc.value, tc.alreadyMinor, got, tc.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []int64{0, 1, 999, 5000, 999_999, 1_000_000, 50_000_000}
	for _, value := range inputs {
		once := ToMinor(value, false)
		twice := once.Normalize()
		if once != twice {
			t.Fatalf("normalizing twice changed %d: %d != %d", value, once, twice)
		}
	}
}

func TestFromDecimalString(t *testing.T) {
	cases := []struct {
		input   string
		want    Minor
		wantErr bool
	}{
		{"5000", 500000, false},
		{"5000.00", 500000, false},
		{"5000.50", 500050, false},
		{"0", 0, false},
		{"5000.505", 0, true},
		{"not-a-number", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := FromDecimalString(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("FromDecimalString(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FromDecimalString(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("FromDecimalString(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestMulQtyGuards(t *testing.T) {
	total, err := Minor(500000).MulQty(3)
	if err != nil {
		t.Fatalf("MulQty: %v", err)
	}
	if total != 1_500_000 {
		t.Fatalf("unexpected total %d", total)
	}

	if _, err := Minor(500000).MulQty(-1); err == nil {
		t.Fatal("expected error for negative quantity")
	}
	if _, err := Minor(math.MaxInt64).MulQty(2); err == nil {
		t.Fatal("expected overflow error")
	}
	zero, err := Minor(500000).MulQty(0)
	if err != nil || zero != 0 {
		t.Fatalf("MulQty(0) = %d, %v", zero, err)
	}
}

func TestSumGuards(t *testing.T) {
	total, err := Sum(100, 200, 300)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if total != 600 {
		t.Fatalf("unexpected sum %d", total)
	}

	if _, err := Sum(math.MaxInt64, 1); err == nil {
		t.Fatal("expected overflow error")
	}
}
