package adoption

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coreWith(ceiling, lag float64, horizon int) CoreParams {
	c := DefaultCore()
	c.CeilingPct = ceiling
	c.LaunchLag = lag
	c.Horizon = horizon
	return c
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel(" Richards ")
	require.NoError(t, err)
	assert.Equal(t, Richards, m)

	_, err = ParseModel("sigmoid")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestEvaluatePreLaunchIsZero(t *testing.T) {
	core := coreWith(100, 5, 60)
	params := DefaultParamSet()
	for _, m := range Models {
		for _, tt := range []float64{0, 1, 5} {
			assert.Zero(t, Evaluate(params.For(m), core, tt), "%s at t=%g", m, tt)
		}
	}
}

func TestRichardsLimits(t *testing.T) {
	core := coreWith(100, 0, 60)
	for _, tt := range []float64{1, 5, 10, 18, 30, 60} {
		for _, k := range []float64{0.1, 0.3, 0.8} {
			logistic := Evaluate(LogisticParams{K: k, T0: 18}, core, tt)
			richardsOne := Evaluate(RichardsParams{K: k, T0: 18, Nu: 1}, core, tt)
			assert.InDelta(t, logistic, richardsOne, 1e-6, "nu=1 at t=%g k=%g", tt, k)

			gompertz := Evaluate(GompertzParams{K: k, T0: 18}, core, tt)
			richardsZero := Evaluate(RichardsParams{K: k, T0: 18, Nu: 1e-5}, core, tt)
			assert.InDelta(t, gompertz, richardsZero, 1e-6, "nu->0 at t=%g k=%g", tt, k)
		}
	}
}

func TestEvaluateRespectsCeiling(t *testing.T) {
	core := coreWith(140, 0, 60)
	v := Evaluate(LinearParams{R: 10}, core, 50)
	assert.Equal(t, 100.0, v)

	core = coreWith(60, 2, 60)
	assert.InDelta(t, 60.0, Evaluate(LinearParams{R: 10}, core, 30), 1e-12)
	assert.InDelta(t, 20.0, Evaluate(LinearParams{R: 10}, core, 4), 1e-12)
}

func TestEvaluateGuardsNaN(t *testing.T) {
	core := coreWith(100, 0, 60)
	v := Evaluate(LogisticParams{K: math.NaN(), T0: 18}, core, 10)
	assert.False(t, math.IsNaN(v))
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestBassEvaluateMatchesSeries(t *testing.T) {
	core := coreWith(80, 2.5, 24)
	p := BassParams{P: 0.03, Q: 0.38}
	series := Generate(p, core)
	for i, v := range series.CumulativePct {
		assert.InDelta(t, v, Evaluate(p, core, float64(i+1)), 1e-12)
	}
}

func TestBassEvaluateLongRange(t *testing.T) {
	core := coreWith(80, 2.5, 24)
	p := BassParams{P: 0.03, Q: 0.38}

	settled := Evaluate(p, core, 5000)
	assert.InDelta(t, 80.0, settled, 1e-9)
	assert.Equal(t, settled, Evaluate(p, core, 1e8))
	assert.Equal(t, settled, Evaluate(p, core, math.Inf(1)))
	assert.Equal(t, settled, Evaluate(p, core, math.MaxFloat64))

	assert.Equal(t, 0.0, Evaluate(p, core, math.NaN()))
	assert.Equal(t, 0.0, Evaluate(p, core, math.Inf(-1)))
	assert.Equal(t, 0.0, Evaluate(BassParams{P: 0, Q: 0.38}, core, math.Inf(1)), "no innovation never takes off")
	assert.Equal(t, 0.0, Evaluate(p, coreWith(80, math.Inf(1), 24), math.Inf(1)), "never launched")

	// A launch lag far from the origin only costs the periods after launch.
	late := coreWith(80, 1e12, 24)
	assert.Equal(t, 0.0, Evaluate(p, late, 1e12))
	assert.InDelta(t, Evaluate(p, coreWith(80, 0, 24), 10), Evaluate(p, late, 1e12+10), 1e-9)
}

func TestRichardsInflection(t *testing.T) {
	assert.InDelta(t, 50.0, RichardsInflectionPct(1), 1e-9)
	assert.InDelta(t, 100*math.Pow(2.0/3.0, 0.5), RichardsInflectionPct(2), 1e-9)
	assert.False(t, math.IsNaN(RichardsInflectionPct(0)))
	assert.Equal(t, "Inflection at 50.00% of ceiling", RichardsInflectionLabel(1))
}

func TestParamSetMerge(t *testing.T) {
	set := DefaultParamSet()
	merged, err := set.Merge(Richards, map[string]float64{"nu": 2.5})
	require.NoError(t, err)
	assert.Equal(t, RichardsParams{K: 0.3, T0: 18, Nu: 2.5}, merged.Richards)
	assert.Equal(t, set.Logistic, merged.Logistic)
	assert.Equal(t, 1.0, set.Richards.Nu, "receiver set must be untouched")

	_, err = set.Merge(Bass, map[string]float64{"k": 1})
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestCoreApplyAndValidate(t *testing.T) {
	ceiling := 85.0
	horizon := 0
	core := DefaultCore().Apply(CorePatch{CeilingPct: &ceiling})
	assert.Equal(t, 85.0, core.CeilingPct)
	assert.Equal(t, 60, core.Horizon)
	require.NoError(t, core.Validate())

	bad := core.Apply(CorePatch{Horizon: &horizon})
	assert.Error(t, bad.Validate())

	require.NoError(t, DefaultParamSet().Validate())
	assert.Error(t, ValidateParams(LogisticParams{K: -1, T0: 5}))
}
