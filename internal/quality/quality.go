// Package quality derives maintenance and documentation signals from
// manifest metadata. Signals are heuristics, not measurements: a package can
// score well here and still be hostile, which is why quality never feeds the
// risk score directly.
package quality

import (
	"strings"
	"time"

	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/risk"
)

// testFrameworks are dev dependencies that indicate a test suite exists.
var testFrameworks = map[string]bool{
	"mocha": true, "jest": true, "chai": true, "ava": true, "tap": true,
	"vitest": true, "jasmine": true, "karma": true, "nyc": true,
	"pytest": true, "tox": true, "nose2": true, "unittest2": true,
}

// Evaluate computes quality metrics from the package's metadata. The result
// always carries Computed=true; callers that skip evaluation use
// risk.DefaultQualityMetrics instead.
func Evaluate(pkg *pkginfo.Package) risk.QualityMetrics {
	m := risk.QualityMetrics{Computed: true}

	m.DocumentationScore = documentationScore(pkg)
	m.HasTests = hasTests(pkg)
	m.HasCICD = hasCICD(pkg)
	m.MaintenanceScore = maintenanceScore(pkg)

	return m
}

func documentationScore(pkg *pkginfo.Package) float64 {
	var score float64
	meta := pkg.Metadata

	switch {
	case len(meta.Description) >= 40:
		score += 0.4
	case len(meta.Description) > 0:
		score += 0.2
	}
	if meta.Homepage != "" {
		score += 0.2
	}
	if meta.Repository != "" {
		score += 0.2
	}
	if len(meta.Keywords) > 0 {
		score += 0.1
	}
	if meta.License != "" {
		score += 0.1
	}
	return clamp01(score)
}

func hasTests(pkg *pkginfo.Package) bool {
	if body, ok := pkg.Scripts["test"]; ok {
		// npm's placeholder test script fails immediately; it is the
		// absence of tests, not their presence.
		if !strings.Contains(body, "no test specified") {
			return true
		}
	}
	for _, dep := range pkg.Dependencies {
		if dep.Kind == pkginfo.KindDev && testFrameworks[dep.Name] {
			return true
		}
	}
	return false
}

func hasCICD(pkg *pkginfo.Package) bool {
	if ci, ok := pkg.Attributes["ci"]; ok {
		if enabled, ok := ci.(bool); ok {
			return enabled
		}
		return true
	}
	return false
}

func maintenanceScore(pkg *pkginfo.Package) float64 {
	var score float64
	meta := pkg.Metadata

	if meta.Repository != "" {
		score += 0.35
	}
	if meta.Author != "" {
		score += 0.15
	}
	if meta.Version != "" && meta.Version != "0.0.0" {
		score += 0.2
	}
	score += recencyScore(meta.PublishDate)
	return clamp01(score)
}

// recencyScore rewards a recent publish date, up to 0.3. An absent or
// unparseable date contributes the 0.15 midpoint: unknown, not stale.
func recencyScore(publishDate string) float64 {
	if publishDate == "" {
		return 0.15
	}
	t, err := time.Parse(time.RFC3339, publishDate)
	if err != nil {
		if t, err = time.Parse("2006-01-02", publishDate); err != nil {
			return 0.15
		}
	}
	age := time.Since(t)
	switch {
	case age < 90*24*time.Hour:
		return 0.3
	case age < 365*24*time.Hour:
		return 0.2
	case age < 2*365*24*time.Hour:
		return 0.1
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
