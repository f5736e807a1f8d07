// Package aggregate combines per-detector scores into one overall risk
// score and discrete risk level.
package aggregate

import (
	"math"

	"github.com/threatflux/pkgscan/internal/risk"
)

// Weights distributes the overall score across components. Malicious code
// and vulnerabilities weigh highest: they indicate concrete hostile or
// exploitable content, while supply-chain breadth and typosquatting are
// exposure and likelihood signals.
type Weights struct {
	MaliciousCode float64
	Vulnerability float64
	SupplyChain   float64
	Typosquatting float64
}

// DefaultWeights are the tuned defaults; override via configuration.
func DefaultWeights() Weights {
	return Weights{
		MaliciousCode: 0.35,
		Vulnerability: 0.30,
		SupplyChain:   0.20,
		Typosquatting: 0.15,
	}
}

// Level discretization thresholds over the 0-100 overall score.
const (
	thresholdLow      = 20
	thresholdMedium   = 40
	thresholdHigh     = 60
	thresholdCritical = 80
)

// criticalVulnSeverity is the CVSS-like severity at which a single
// vulnerability forces the High override.
const criticalVulnSeverity = 9.0

// Input carries everything the aggregator consumes.
type Input struct {
	SupplyChainScore   float64
	VulnerabilityScore float64
	MaliciousScore     float64
	TyposquatScore     float64

	Vulnerabilities   []risk.Vulnerability
	MaliciousPatterns []risk.MaliciousPattern
}

// Aggregate computes the weighted overall score, discretizes it into a
// level, and then applies the severe-finding override. The override is a
// separate clamp step, not folded into the weighted sum: one critical
// concrete finding must not be diluted away by benign signals, and keeping
// it separate keeps the rule auditable.
func Aggregate(in Input, w Weights) risk.Score {
	components := map[string]float64{
		"supply_chain":   clamp100(in.SupplyChainScore),
		"vulnerability":  clamp100(in.VulnerabilityScore),
		"malicious_code": clamp100(in.MaliciousScore),
		"typosquatting":  clamp100(in.TyposquatScore),
	}

	overall := components["malicious_code"]*w.MaliciousCode +
		components["vulnerability"]*w.Vulnerability +
		components["supply_chain"]*w.SupplyChain +
		components["typosquatting"]*w.Typosquatting
	overall = clamp100(overall)

	level := levelFromScore(overall)
	if hasCriticalFinding(in) && level < risk.LevelHigh {
		level = risk.LevelHigh
	}

	return risk.Score{
		Components: components,
		Overall:    math.Round(overall*100) / 100,
		Level:      level,
	}
}

func levelFromScore(score float64) risk.Level {
	switch {
	case score < thresholdLow:
		return risk.LevelSafe
	case score < thresholdMedium:
		return risk.LevelLow
	case score < thresholdHigh:
		return risk.LevelMedium
	case score < thresholdCritical:
		return risk.LevelHigh
	default:
		return risk.LevelCritical
	}
}

func hasCriticalFinding(in Input) bool {
	for _, v := range in.Vulnerabilities {
		if v.Severity >= criticalVulnSeverity {
			return true
		}
	}
	for _, p := range in.MaliciousPatterns {
		if p.Severity == risk.SeverityCritical {
			return true
		}
	}
	return false
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
