package fixed

// Signed is a sign-magnitude fixed-point number. Negative zero is normalized
// away by every constructor and operation, so (0, true) and (0, false)
// compare equal and never both occur in practice.
type Signed struct {
	Mag Fixed
	Neg bool
}

// NewSigned builds a signed value, normalizing negative zero.
func NewSigned(mag Fixed, neg bool) Signed {
	if mag.IsZero() {
		neg = false
	}
	return Signed{Mag: mag, Neg: neg}
}

// SignedFromUint converts an unsigned integer to a non-negative signed value.
func SignedFromUint(n uint64) (Signed, error) {
	f, err := FromUint(n)
	if err != nil {
		return Signed{}, err
	}
	return Signed{Mag: f}, nil
}

// Sign returns -1, 0 or 1.
func (s Signed) Sign() int {
	if s.Mag.IsZero() {
		return 0
	}
	if s.Neg {
		return -1
	}
	return 1
}

// Abs returns the magnitude.
func (s Signed) Abs() Fixed { return s.Mag }

// Negate flips the sign.
func (s Signed) Negate() Signed {
	return NewSigned(s.Mag, !s.Neg)
}

// IsZero reports whether s is zero.
func (s Signed) IsZero() bool { return s.Mag.IsZero() }

// Add returns s+o.
func (s Signed) Add(o Signed) (Signed, error) {
	if s.Neg == o.Neg {
		mag, err := s.Mag.Add(o.Mag)
		if err != nil {
			return Signed{}, err
		}
		return NewSigned(mag, s.Neg), nil
	}
	// Opposite signs: subtract the smaller magnitude from the larger and
	// keep the larger side's sign.
	if s.Mag.Cmp(o.Mag) >= 0 {
		mag, err := s.Mag.Sub(o.Mag)
		if err != nil {
			return Signed{}, err
		}
		return NewSigned(mag, s.Neg), nil
	}
	mag, err := o.Mag.Sub(s.Mag)
	if err != nil {
		return Signed{}, err
	}
	return NewSigned(mag, o.Neg), nil
}

// Sub returns s-o.
func (s Signed) Sub(o Signed) (Signed, error) {
	return s.Add(o.Negate())
}

// Mul returns s*o.
func (s Signed) Mul(o Signed) (Signed, error) {
	mag, err := s.Mag.Mul(o.Mag)
	if err != nil {
		return Signed{}, err
	}
	return NewSigned(mag, s.Neg != o.Neg), nil
}

// Div returns s/o.
func (s Signed) Div(o Signed) (Signed, error) {
	mag, err := s.Mag.Div(o.Mag)
	if err != nil {
		return Signed{}, err
	}
	return NewSigned(mag, s.Neg != o.Neg), nil
}

// Cmp compares s and o, returning -1, 0 or 1. Zero compares equal regardless
// of the sign flag.
func (s Signed) Cmp(o Signed) int {
	ss, os := s.Sign(), o.Sign()
	if ss != os {
		if ss < os {
			return -1
		}
		return 1
	}
	c := s.Mag.Cmp(o.Mag)
	if ss < 0 {
		return -c
	}
	return c
}

// Equal reports whether s and o represent the same value.
func (s Signed) Equal(o Signed) bool { return s.Cmp(o) == 0 }

// String renders the value with a leading minus for negatives.
func (s Signed) String() string {
	if s.Sign() < 0 {
		return "-" + s.Mag.String()
	}
	return s.Mag.String()
}
