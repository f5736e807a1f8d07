package aggregate

import (
	"math"
	"testing"

	"github.com/threatflux/pkgscan/internal/risk"
)

func TestAggregateWeightedOverall(t *testing.T) {
	in := Input{
		SupplyChainScore:   50,
		VulnerabilityScore: 40,
		MaliciousScore:     20,
		TyposquatScore:     0,
	}

	got := Aggregate(in, DefaultWeights())

	// 20*0.35 + 40*0.30 + 50*0.20 + 0*0.15
	want := 29.0
	if math.Abs(got.Overall-want) > 1e-9 {
		t.Errorf("Overall = %v, want %v", got.Overall, want)
	}
	if got.Level != risk.LevelLow {
		t.Errorf("Level = %v, want low", got.Level)
	}
	if got.Components["supply_chain"] != 50 || got.Components["vulnerability"] != 40 {
		t.Errorf("Components = %v", got.Components)
	}
}

func TestAggregateLevelThresholds(t *testing.T) {
	// Thresholds are over the weighted overall, so drive them with a
	// uniform component value: overall == value when all components match.
	uniform := func(v float64) Input {
		return Input{SupplyChainScore: v, VulnerabilityScore: v, MaliciousScore: v, TyposquatScore: v}
	}

	cases := []struct {
		value float64
		want  risk.Level
	}{
		{0, risk.LevelSafe},
		{19.5, risk.LevelSafe},
		{20.5, risk.LevelLow},
		{39.5, risk.LevelLow},
		{40.5, risk.LevelMedium},
		{59.5, risk.LevelMedium},
		{60.5, risk.LevelHigh},
		{79.5, risk.LevelHigh},
		{80.5, risk.LevelCritical},
		{100, risk.LevelCritical},
	}

	for _, tt := range cases {
		got := Aggregate(uniform(tt.value), DefaultWeights())
		if got.Level != tt.want {
			t.Errorf("Aggregate(uniform %v).Level = %v, want %v", tt.value, got.Level, tt.want)
		}
		if math.Abs(got.Overall-tt.value) > 1e-6 {
			t.Errorf("Aggregate(uniform %v).Overall = %v", tt.value, got.Overall)
		}
	}
}

func TestLevelFromScoreBoundaries(t *testing.T) {
	// Thresholds are lower-inclusive: a score exactly at a threshold takes
	// the higher level.
	cases := []struct {
		score float64
		want  risk.Level
	}{
		{19.999, risk.LevelSafe},
		{20, risk.LevelLow},
		{40, risk.LevelMedium},
		{60, risk.LevelHigh},
		{80, risk.LevelCritical},
	}
	for _, tt := range cases {
		if got := levelFromScore(tt.score); got != tt.want {
			t.Errorf("levelFromScore(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestAggregateCriticalOverride(t *testing.T) {
	// A single near-max vulnerability must clamp the level to at least
	// high even when the weighted sum lands in the safe band.
	in := Input{
		VulnerabilityScore: 9.8, // low weighted contribution
		Vulnerabilities: []risk.Vulnerability{
			{CVEID: "CVE-2017-5941", Severity: 9.8, Dependency: "node-serialize"},
		},
	}

	got := Aggregate(in, DefaultWeights())
	if got.Level != risk.LevelHigh {
		t.Errorf("Level = %v, want high via override", got.Level)
	}
	if got.Overall >= 20 {
		t.Errorf("Overall = %v, override must not inflate the score", got.Overall)
	}
}

func TestAggregateCriticalPatternOverride(t *testing.T) {
	in := Input{
		MaliciousScore: 25,
		MaliciousPatterns: []risk.MaliciousPattern{
			{Name: "remote-code-exec", Severity: risk.SeverityCritical},
		},
	}

	got := Aggregate(in, DefaultWeights())
	if got.Level != risk.LevelHigh {
		t.Errorf("Level = %v, want high via override", got.Level)
	}
}

func TestAggregateOverrideDoesNotDowngrade(t *testing.T) {
	// Already critical stays critical; the override is a floor, not a cap.
	in := Input{
		SupplyChainScore:   100,
		VulnerabilityScore: 100,
		MaliciousScore:     100,
		TyposquatScore:     100,
		Vulnerabilities:    []risk.Vulnerability{{CVEID: "CVE-X", Severity: 9.9}},
	}

	got := Aggregate(in, DefaultWeights())
	if got.Level != risk.LevelCritical {
		t.Errorf("Level = %v, want critical", got.Level)
	}
}

func TestAggregateSubCriticalFindingsNoOverride(t *testing.T) {
	in := Input{
		VulnerabilityScore: 74,
		Vulnerabilities: []risk.Vulnerability{
			{CVEID: "CVE-2020-8203", Severity: 7.4},
		},
		MaliciousPatterns: []risk.MaliciousPattern{
			{Name: "network-call", Severity: risk.SeverityHigh},
		},
	}

	got := Aggregate(in, DefaultWeights())
	// 74*0.30 = 22.2 -> low; no override fires.
	if got.Level != risk.LevelLow {
		t.Errorf("Level = %v, want low", got.Level)
	}
}

func TestAggregateClampsComponents(t *testing.T) {
	in := Input{
		SupplyChainScore:   250,
		VulnerabilityScore: -10,
	}

	got := Aggregate(in, DefaultWeights())
	if got.Components["supply_chain"] != 100 {
		t.Errorf("supply_chain = %v, want clamped to 100", got.Components["supply_chain"])
	}
	if got.Components["vulnerability"] != 0 {
		t.Errorf("vulnerability = %v, want clamped to 0", got.Components["vulnerability"])
	}
	if got.Overall != 20 {
		t.Errorf("Overall = %v, want 20", got.Overall)
	}
}

func TestAggregateCustomWeights(t *testing.T) {
	w := Weights{MaliciousCode: 1, Vulnerability: 0, SupplyChain: 0, Typosquatting: 0}
	got := Aggregate(Input{MaliciousScore: 65, VulnerabilityScore: 100}, w)
	if got.Overall != 65 {
		t.Errorf("Overall = %v, want 65", got.Overall)
	}
	if got.Level != risk.LevelHigh {
		t.Errorf("Level = %v, want high", got.Level)
	}
}
