package fixed

import "testing"

func sgn(t *testing.T, n uint64, neg bool) Signed {
	t.Helper()
	return NewSigned(mustUint(t, n), neg)
}

func TestSignedNegativeZero(t *testing.T) {
	a := NewSigned(Zero(), true)
	b := NewSigned(Zero(), false)
	if a.Neg {
		t.Error("constructor kept negative zero")
	}
	if !a.Equal(b) || a.Cmp(b) != 0 {
		t.Error("(0, true) and (0, false) must compare equal")
	}
}

func TestSignedAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Signed
		wantInt uint64
		wantNeg bool
	}{
		{"pos+pos", sgn(t, 3, false), sgn(t, 4, false), 7, false},
		{"neg+neg", sgn(t, 3, true), sgn(t, 4, true), 7, true},
		{"pos+smaller neg", sgn(t, 9, false), sgn(t, 4, true), 5, false},
		{"pos+larger neg", sgn(t, 4, false), sgn(t, 9, true), 5, true},
		{"cancel to zero", sgn(t, 4, false), sgn(t, 4, true), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got.Mag.Floor() != tt.wantInt || got.Neg != tt.wantNeg {
				t.Errorf("Add = %s, want %d neg=%v", got, tt.wantInt, tt.wantNeg)
			}
		})
	}
}

func TestSignedMulDiv(t *testing.T) {
	a := sgn(t, 6, true)
	b := sgn(t, 2, false)

	prod, err := a.Mul(b)
	if err != nil {
		t.Fatal(err)
	}
	if prod.Mag.Floor() != 12 || !prod.Neg {
		t.Errorf("Mul = %s, want -12", prod)
	}

	quot, err := a.Div(sgn(t, 3, true))
	if err != nil {
		t.Fatal(err)
	}
	if quot.Mag.Floor() != 2 || quot.Neg {
		t.Errorf("Div = %s, want 2", quot)
	}

	zero, err := sgn(t, 0, false).Mul(a)
	if err != nil {
		t.Fatal(err)
	}
	if zero.Neg {
		t.Error("zero product kept a sign")
	}
}

func TestSignedCmp(t *testing.T) {
	if sgn(t, 2, true).Cmp(sgn(t, 1, true)) != -1 {
		t.Error("-2 should compare below -1")
	}
	if sgn(t, 1, true).Cmp(sgn(t, 1, false)) != -1 {
		t.Error("-1 should compare below 1")
	}
	if sgn(t, 5, false).Cmp(sgn(t, 3, false)) != 1 {
		t.Error("5 should compare above 3")
	}
}

func TestSignedSubAndNegate(t *testing.T) {
	got, err := sgn(t, 3, false).Sub(sgn(t, 5, false))
	if err != nil {
		t.Fatal(err)
	}
	if got.Mag.Floor() != 2 || !got.Neg {
		t.Errorf("3-5 = %s, want -2", got)
	}
	if n := sgn(t, 2, false).Negate(); !n.Neg || n.Mag.Floor() != 2 {
		t.Errorf("Negate(2) = %s, want -2", n)
	}
}
