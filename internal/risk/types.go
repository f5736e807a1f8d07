package risk

import (
	"encoding/json"

	"github.com/threatflux/pkgscan/internal/pkginfo"
)

// Vulnerability is a known-vulnerability match for one declared dependency.
// At least one of CVEID and AdvisoryID is non-empty.
type Vulnerability struct {
	CVEID        string  `json:"cve_id,omitempty"`
	AdvisoryID   string  `json:"advisory_id,omitempty"`
	Description  string  `json:"description"`
	Severity     float64 `json:"severity_score"` // CVSS-like, 0.0-10.0
	Dependency   string  `json:"dependency"`
	VersionRange string  `json:"version_range"`
}

// MaliciousPattern is one firing of a malicious-code detector.
// Firings are deduplicated by (Name, Location).
type MaliciousPattern struct {
	Name        string   `json:"pattern_name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Severity    Severity `json:"severity"`
}

// TyposquattingRisk reports how closely the package name resembles a
// well-known package. SimilarPackages is ordered most-similar first and is
// non-empty whenever Flagged is true.
type TyposquattingRisk struct {
	Flagged         bool     `json:"is_potential_typosquatting"`
	SimilarPackages []string `json:"similar_packages,omitempty"`
	Confidence      float64  `json:"confidence_score"` // 0.0-1.0
}

// QualityMetrics carries maintenance and documentation signals derived from
// manifest metadata. The zero-information default scores are midpoints, not
// clean bills of health; Computed distinguishes "evaluated" from "unknown".
type QualityMetrics struct {
	DocumentationScore float64 `json:"documentation_score"` // 0.0-1.0
	HasTests           bool    `json:"has_tests"`
	HasCICD            bool    `json:"has_ci_cd"`
	MaintenanceScore   float64 `json:"maintenance_score"` // 0.0-1.0
	Computed           bool    `json:"computed"`
}

// DefaultQualityMetrics returns the "unknown" quality signal.
func DefaultQualityMetrics() QualityMetrics {
	return QualityMetrics{
		DocumentationScore: 0.5,
		HasTests:           false,
		HasCICD:            false,
		MaintenanceScore:   0.5,
		Computed:           false,
	}
}

// Warning records a detector-local degradation: a lookup that failed, a feed
// that was unreachable. Warnings never abort an analysis.
type Warning struct {
	Source  string `json:"source"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// DependencyAnalysis is the outcome of the bounded dependency-graph walk.
type DependencyAnalysis struct {
	// Dependencies lists every distinct dependency reference seen during
	// the walk, direct dependencies first.
	Dependencies []pkginfo.Dependency `json:"dependencies"`
	// ResolvedDepth is how many transitive levels were actually expanded.
	ResolvedDepth int `json:"resolved_depth"`
	// Breadth counts distinct dependency names across all levels.
	Breadth  int       `json:"breadth"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Score holds the per-component risk scores and the discretized level.
// Component keys: supply_chain, vulnerability, malicious_code, typosquatting.
// Every component value is in [0,100].
type Score struct {
	Components map[string]float64 `json:"components"`
	Overall    float64            `json:"overall"`
	Level      Level              `json:"risk_level"`
}

// Component returns a named component score, 0 when absent.
func (s Score) Component(name string) float64 {
	return s.Components[name]
}

// Assessment pairs the score with the concrete findings that produced it.
type Assessment struct {
	Score             Score              `json:"risk_score"`
	Vulnerabilities   []Vulnerability    `json:"vulnerabilities"`
	MaliciousPatterns []MaliciousPattern `json:"malicious_patterns"`
}

// AnalysisResult is the complete output of one analysis invocation. Every
// field is populated; detectors that were disabled or degraded contribute
// their documented defaults plus warnings.
type AnalysisResult struct {
	Package            *pkginfo.Package   `json:"package"`
	Assessment         Assessment         `json:"assessment"`
	DependencyAnalysis DependencyAnalysis `json:"dependency_analysis"`
	Typosquatting      *TyposquattingRisk `json:"typosquatting_risk,omitempty"`
	Quality            QualityMetrics     `json:"quality_metrics"`
	Warnings           []Warning          `json:"warnings,omitempty"`
}

// RiskLevel is the overall verdict for the analyzed package.
func (r *AnalysisResult) RiskLevel() Level {
	return r.Assessment.Score.Level
}

// SupplyChainScore is the supply_chain component of the risk score.
func (r *AnalysisResult) SupplyChainScore() float64 {
	return r.Assessment.Score.Component("supply_chain")
}

// ToJSON serializes the result to an indented JSON document.
func (r *AnalysisResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
