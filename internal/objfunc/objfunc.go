// Package objfunc computes the scalar objective a calibration
// minimizes from weighted residuals, or reads it verbatim from the
// model when the model computes its own.
package objfunc

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calibkit/calib/internal/obs"
)

// Huge is the sentinel assigned when an objective cannot be evaluated
// to a finite value. Any feasible evaluation beats it.
const Huge = 1e300

// Func maps an extracted observation set to the scalar objective. dir
// is the evaluation working directory, used by functions that read
// model-computed values.
type Func interface {
	Name() string
	Calc(dir string, g *obs.Group) (float64, error)
}

// BoxCox is the power transform applied to measured and simulated
// values before residuals are formed. Lambda zero degenerates to the
// natural log.
type BoxCox struct {
	Enabled bool
	Lambda  float64
}

// Apply transforms y. Non-positive arguments that the transform cannot
// handle fall back to the identity with a warning rather than poisoning
// the objective.
func (b BoxCox) Apply(y float64) float64 {
	if !b.Enabled {
		return y
	}
	if y <= 0 {
		slog.Warn("box-cox transform of non-positive value, using identity", "value", y, "lambda", b.Lambda)
		return y
	}
	if b.Lambda == 0 {
		return math.Log(y)
	}
	return (math.Pow(y, b.Lambda) - 1) / b.Lambda
}

// WSSE is the weighted sum of squared errors.
type WSSE struct {
	Trans BoxCox
}

func (WSSE) Name() string { return "wsse" }

// Calc sums the squared residuals over all non-augmented observations.
// The weight multiplies the raw values before the transform, so at
// lambda zero it cancels out of the residual entirely.
func (w WSSE) Calc(_ string, g *obs.Group) (float64, error) {
	meas, sim, wgt := g.Residuals("")
	sum := 0.0
	for i := range meas {
		r := w.Trans.Apply(wgt[i]*meas[i]) - w.Trans.Apply(wgt[i]*sim[i])
		sum += r * r
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Huge, nil
	}
	return sum, nil
}

// GroupValue is the objective restricted to one observation group.
type GroupValue struct {
	Group string
	Value float64
}

// Breakdown computes the per-group contributions, in group order.
func (w WSSE) Breakdown(g *obs.Group) []GroupValue {
	var out []GroupValue
	for _, name := range g.Groups() {
		meas, sim, wgt := g.Residuals(name)
		sum := 0.0
		for i := range meas {
			r := w.Trans.Apply(wgt[i]*meas[i]) - w.Trans.Apply(wgt[i]*sim[i])
			sum += r * r
		}
		out = append(out, GroupValue{Group: name, Value: sum})
	}
	return out
}

// SAWE is the sum of absolute weighted errors, less sensitive to
// outlier residuals than WSSE.
type SAWE struct {
	Trans BoxCox
}

func (SAWE) Name() string { return "sawe" }

func (s SAWE) Calc(_ string, g *obs.Group) (float64, error) {
	meas, sim, wgt := g.Residuals("")
	sum := 0.0
	for i := range meas {
		sum += math.Abs(s.Trans.Apply(wgt[i]*meas[i]) - s.Trans.Apply(wgt[i]*sim[i]))
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Huge, nil
	}
	return sum, nil
}

// User reads the objective the model computed itself. The model writes
// OstExeOut in its working directory; the last OST_ObjFuncVal line
// holds the value and an optional OST_ModelErrCode line flags failure.
type User struct{}

// OutputFile is the file a self-scoring model writes its result to.
const OutputFile = "OstExeOut"

func (User) Name() string { return "user" }

func (User) Calc(dir string, _ *obs.Group) (float64, error) {
	path := filepath.Join(dir, OutputFile)
	f, err := os.Open(path)
	if err != nil {
		return Huge, fmt.Errorf("model objective output missing: %w", err)
	}
	defer f.Close()

	var (
		val   float64
		found bool
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "OST_ModelErrCode":
			if code, err := strconv.ParseFloat(fields[1], 64); err == nil && code != 0 {
				return Huge, fmt.Errorf("model reported error code %g", code)
			}
		case "OST_ObjFuncVal":
			// iterative models append; the last occurrence wins
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				val, found = v, true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Huge, fmt.Errorf("failed to read %s: %w", OutputFile, err)
	}
	if !found {
		return Huge, fmt.Errorf("no OST_ObjFuncVal line in %s", OutputFile)
	}
	return val, nil
}

// ForConfig selects the objective function named in the input.
func ForConfig(name string, trans BoxCox) (Func, error) {
	switch name {
	case "wsse":
		return WSSE{Trans: trans}, nil
	case "sawe":
		return SAWE{Trans: trans}, nil
	case "user":
		return User{}, nil
	default:
		return nil, fmt.Errorf("unknown objective function %q", name)
	}
}
