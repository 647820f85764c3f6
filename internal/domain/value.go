package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a float that may be explicitly undefined.
type Value struct {
	V       float64
	Defined bool
}

// NewValue wraps v; NaN and infinities become Undefined.
func NewValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined()
	}
	return Value{V: v, Defined: true}
}

// Undefined returns the undefined marker.
func Undefined() Value {
	return Value{}
}

// Get returns the value and whether it is defined.
func (v Value) Get() (float64, bool) {
	return v.V, v.Defined
}

// String renders the value, or "N/A" when undefined.
func (v Value) String() string {
	if !v.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(v.V, 'g', -1, 64)
}

// MarshalJSON encodes undefined values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes null as Undefined.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Undefined()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = NewValue(f)
	return nil
}
