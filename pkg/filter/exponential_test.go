package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

func TestExponential_Recurrence(t *testing.T) {
	raw := []float64{1.0, 2.0, 0.5, -3.0, 4.25, 4.25, 0}

	for _, alpha := range []float64{0, 0.1, 0.5, 0.95, 1} {
		f, err := New(alpha)
		if err != nil {
			t.Fatalf("New(%f): %v", alpha, err)
		}

		var prev float64
		for n, r := range raw {
			got := f.Update(r)
			want := r
			if n > 0 {
				want = alpha*prev + (1-alpha)*r
			}
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("alpha=%f n=%d: Update(%f) = %f, want %f", alpha, n, r, got, want)
			}
			prev = got
		}
	}
}

func TestExponential_Deterministic(t *testing.T) {
	raw := []float64{0.3, 0.9, 1.7, 1.2, 0.1}

	a, _ := New(0.8)
	b, _ := New(0.8)
	for _, r := range raw {
		if x, y := a.Update(r), b.Update(r); x != y {
			t.Fatalf("same inputs diverged: %f != %f", x, y)
		}
	}
}

func TestExponential_SteadyInput(t *testing.T) {
	f, _ := New(0.95)

	for i, want := range []float64{1.0, 1.0, 1.0} {
		if got := f.Update(1.0); got != want {
			t.Errorf("Update #%d = %f, want %f", i, got, want)
		}
	}
}

func TestExponential_SetAlphaRejectsOutOfRange(t *testing.T) {
	f, _ := New(0.5)
	f.Update(2)
	f.Update(4) // history 3

	for _, bad := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		err := f.SetAlpha(bad)
		var verr *robot.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("SetAlpha(%f) = %v, want ValidationError", bad, err)
		}
		if verr.Field != "alpha" {
			t.Errorf("ValidationError field = %s, want alpha", verr.Field)
		}
	}

	if got := f.Alpha(); got != 0.5 {
		t.Errorf("Alpha() = %f after rejected updates, want 0.5", got)
	}
	if got, _ := f.Value(); got != 3 {
		t.Errorf("Value() = %f after rejected updates, want 3", got)
	}
}

func TestExponential_SetAlphaKeepsHistory(t *testing.T) {
	f, _ := New(0.5)
	f.Update(2)

	if err := f.SetAlpha(0); err != nil {
		t.Fatalf("SetAlpha(0): %v", err)
	}
	if got := f.Update(10); got != 10 {
		t.Errorf("alpha=0 should track raw input, got %f", got)
	}

	if err := f.SetAlpha(1); err != nil {
		t.Fatalf("SetAlpha(1): %v", err)
	}
	if got := f.Update(-5); got != 10 {
		t.Errorf("alpha=1 should hold history, got %f", got)
	}
}

func TestExponential_Seed(t *testing.T) {
	f, _ := New(0.9)
	if f.Seeded() {
		t.Fatal("new filter should not be seeded")
	}
	if !f.Seed(2) {
		t.Fatal("first Seed should be used")
	}
	if f.Seed(5) {
		t.Error("second Seed should be ignored")
	}
	if got := f.Update(2); got != 2 {
		t.Errorf("Update after Seed(2) with steady input = %f, want 2", got)
	}
}

func TestNew_InvalidAlpha(t *testing.T) {
	if _, err := New(2); err == nil {
		t.Error("New(2) should fail")
	}
}
