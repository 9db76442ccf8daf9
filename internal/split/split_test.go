package split

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
)

func TestShareExample(t *testing.T) {
	total := decimal.RequireFromString("30.00")
	ps := []model.Participant{{ID: "a", Weight: 1}, {ID: "b", Weight: 2}}

	shares, err := Shares(total, ps)
	if err != nil {
		t.Fatalf("Shares: %v", err)
	}
	if !shares["a"].Equal(decimal.RequireFromString("10")) {
		t.Errorf("share a = %s, want 10.00", shares["a"])
	}
	if !shares["b"].Equal(decimal.RequireFromString("20")) {
		t.Errorf("share b = %s, want 20.00", shares["b"])
	}
}

func TestShareRounding(t *testing.T) {
	got, err := Share(decimal.RequireFromString("10"), 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "3.33" {
		t.Errorf("Share(10, 1, 3) = %s, want 3.33", got)
	}
}

func TestShareRejectsInvalidWeights(t *testing.T) {
	cases := []struct{ w, total int }{{0, 1}, {-1, 3}, {1, 0}, {4, 3}}
	for _, tc := range cases {
		if _, err := Share(decimal.NewFromInt(10), tc.w, tc.total); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("Share(w=%d, total=%d) error = %v, want ErrInvalidWeight", tc.w, tc.total, err)
		}
	}
}

func TestSharesSumToTotalWithinTolerance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cent := decimal.RequireFromString("0.01")

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(12)
		ps := make([]model.Participant, n)
		for j := range ps {
			ps[j] = model.Participant{ID: fmt.Sprintf("p%d", j), Weight: 1 + rng.Intn(9)}
		}
		total := decimal.New(int64(rng.Intn(1_000_000)), -2)

		shares, err := Shares(total, ps)
		if err != nil {
			t.Fatalf("Shares: %v", err)
		}
		sum := decimal.Zero
		for _, s := range shares {
			sum = sum.Add(s)
		}
		tolerance := cent.Mul(decimal.NewFromInt(int64(n)))
		if sum.Sub(total).Abs().GreaterThan(tolerance) {
			t.Fatalf("iteration %d: sum %s differs from total %s by more than %s", i, sum, total, tolerance)
		}
	}
}

func TestShareOfUnknownParticipant(t *testing.T) {
	ps := []model.Participant{{ID: "a", Weight: 1}}
	if _, err := ShareOf(decimal.NewFromInt(5), ps, "zzz"); err == nil {
		t.Fatal("expected error for unknown participant")
	}
}

func TestToBaseUnits(t *testing.T) {
	cases := map[string]string{
		"10":        "10000000",
		"3.33":      "3330000",
		"0.000001":  "1",
		"0.0000009": "0",
	}
	for in, want := range cases {
		if got := ToBaseUnits(decimal.RequireFromString(in), 6); got != want {
			t.Errorf("ToBaseUnits(%s) = %s, want %s", in, got, want)
		}
	}
}
