package param

import (
	"fmt"
	"math"
)

// Transform names a one-dimensional mapping applied to parameter values.
// Three transforms appear on every parameter: TxIn maps values read from
// configuration or a prior-run log into the internal (search) frame,
// TxSearch defines the internal frame itself, and TxOut maps the internal
// value into the frame written to the evaluation log.
type Transform int

const (
	TxNone Transform = iota
	TxLog10
	TxLn
)

func (t Transform) String() string {
	switch t {
	case TxLog10:
		return "log10"
	case TxLn:
		return "ln"
	default:
		return "none"
	}
}

// ParseTransform maps a configuration keyword to a Transform.
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "none", "":
		return TxNone, nil
	case "log10":
		return TxLog10, nil
	case "ln", "log":
		return TxLn, nil
	default:
		return TxNone, fmt.Errorf("unknown transform %q", s)
	}
}

const nearlyZero = 1e-300

// convertIn maps a raw value (in the txIn frame) into the search frame.
func convertIn(v float64, in, search Transform) float64 {
	switch search {
	case TxNone:
		switch in {
		case TxLog10:
			return math.Pow(10, v)
		case TxLn:
			return math.Exp(v)
		default:
			return v
		}
	case TxLog10:
		switch in {
		case TxLog10:
			return v
		case TxLn:
			return math.Log10(math.Exp(v))
		default:
			if v <= 0 {
				v = nearlyZero
			}
			return math.Log10(v)
		}
	case TxLn:
		switch in {
		case TxLog10:
			return math.Log(math.Pow(10, v))
		case TxLn:
			return v
		default:
			if v <= 0 {
				v = nearlyZero
			}
			return math.Log(v)
		}
	}
	return v
}

// convertOut maps a search-frame value into the txOut frame.
func convertOut(v float64, search, out Transform) float64 {
	// first undo the search transform, then apply the output one
	return applyTx(invertTx(v, search), out)
}

// invertTx maps a search-frame value back to model units.
func invertTx(v float64, search Transform) float64 {
	switch search {
	case TxLog10:
		return math.Pow(10, v)
	case TxLn:
		return math.Exp(v)
	default:
		return v
	}
}

func applyTx(v float64, t Transform) float64 {
	switch t {
	case TxLog10:
		return math.Log10(v)
	case TxLn:
		return math.Log(v)
	default:
		return v
	}
}
