// Package vulnmatch matches declared dependencies against a vulnerability
// feed using semantic-version range intersection.
package vulnmatch

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"

	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/risk"
)

// defaultSeverity is assigned when a feed supplies no usable severity.
// Findings without a numeric severity are never silently dropped.
const defaultSeverity = 5.0

// Advisory is one known-vulnerable range for a package, as supplied by a
// feed.
type Advisory struct {
	ID          string  `yaml:"id" json:"id"`
	CVE         string  `yaml:"cve" json:"cve"`
	Description string  `yaml:"description" json:"description"`
	// Affected is a semver range expression ("<4.17.21", ">=1.0.0 <1.2.3").
	Affected string `yaml:"affected" json:"affected"`
	// Severity is a numeric CVSS-like score, 0 when not provided.
	Severity float64 `yaml:"severity" json:"severity"`
	// CVSSVector is consulted when Severity is absent.
	CVSSVector string `yaml:"cvss_vector" json:"cvss_vector,omitempty"`
}

// Feed is the query interface over a vulnerability data source. Lookups must
// be safe for concurrent use; failures are treated as "no data" by the
// matcher.
type Feed interface {
	Lookup(ctx context.Context, name string) ([]Advisory, error)
}

// Matcher matches dependency lists against a Feed.
type Matcher struct {
	feed Feed
}

// NewMatcher creates a Matcher over the given feed.
func NewMatcher(feed Feed) *Matcher {
	return &Matcher{feed: feed}
}

// Match looks each dependency up in the feed and returns one Vulnerability
// per distinct advisory whose affected range intersects the dependency's
// declared constraint. Feed lookup failures degrade to warnings.
func (m *Matcher) Match(ctx context.Context, deps []pkginfo.Dependency) ([]risk.Vulnerability, []risk.Warning) {
	if m.feed == nil {
		return nil, nil
	}

	var (
		vulns    []risk.Vulnerability
		warnings []risk.Warning
	)
	seen := map[string]bool{} // dedupe by advisory identity

	for _, dep := range deps {
		if ctx.Err() != nil {
			warnings = append(warnings, risk.Warning{
				Source:  "vulnerability-feed",
				Subject: dep.Name,
				Message: ctx.Err().Error(),
			})
			break
		}

		advisories, err := m.feed.Lookup(ctx, dep.Name)
		if err != nil {
			warnings = append(warnings, risk.Warning{
				Source:  "vulnerability-feed",
				Subject: dep.Name,
				Message: err.Error(),
			})
			continue
		}

		for _, adv := range advisories {
			if adv.ID == "" && adv.CVE == "" {
				continue // unidentifiable advisory, nothing to report
			}
			if !rangeMatches(dep.Constraint, adv.Affected) {
				continue
			}
			key := adv.ID + "|" + adv.CVE
			if seen[key] {
				continue
			}
			seen[key] = true
			vulns = append(vulns, risk.Vulnerability{
				CVEID:        adv.CVE,
				AdvisoryID:   adv.ID,
				Description:  adv.Description,
				Severity:     advisorySeverity(adv),
				Dependency:   dep.Name,
				VersionRange: adv.Affected,
			})
		}
	}

	sort.Slice(vulns, func(i, j int) bool {
		if vulns[i].Severity != vulns[j].Severity {
			return vulns[i].Severity > vulns[j].Severity
		}
		return vulns[i].AdvisoryID+vulns[i].CVEID < vulns[j].AdvisoryID+vulns[j].CVEID
	})
	return vulns, warnings
}

// Score maps matched vulnerabilities to the 0-100 vulnerability component.
// The component is the maximum severity rescaled, not a sum: many low
// findings must not outrank one critical one.
func Score(vulns []risk.Vulnerability) float64 {
	var max float64
	for _, v := range vulns {
		if v.Severity > max {
			max = v.Severity
		}
	}
	return max * 10
}

func advisorySeverity(adv Advisory) float64 {
	if adv.Severity > 0 {
		return clampSeverity(adv.Severity)
	}
	if adv.CVSSVector != "" {
		if score, ok := cvssBaseScore(adv.CVSSVector); ok {
			return clampSeverity(score)
		}
	}
	return defaultSeverity
}

func clampSeverity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// cvssBaseScore parses a CVSS v3.x vector string into its base score.
func cvssBaseScore(vector string) (float64, bool) {
	if v31, err := gocvss31.ParseVector(vector); err == nil {
		return v31.BaseScore(), true
	}
	if v30, err := gocvss30.ParseVector(vector); err == nil {
		return v30.BaseScore(), true
	}
	return 0, false
}

var versionTokenRe = regexp.MustCompile(`\d+(\.\d+){0,2}(-[0-9A-Za-z.-]+)?`)

// rangeMatches reports whether a dependency's declared constraint can
// resolve to a version inside the advisory's affected range. An exact
// constraint is checked directly; for range constraints ("^4.17.0",
// ">=1.0"), the constraint's base version is checked, which matches any
// install resolving to the range's floor. Unparseable inputs fail open to
// "no match" rather than guessing.
func rangeMatches(constraint, affected string) bool {
	affectedRange, err := semver.NewConstraint(normalizeRange(affected))
	if err != nil {
		return false
	}

	base := baseVersion(constraint)
	if base == nil {
		return false
	}
	return affectedRange.Check(base)
}

// baseVersion extracts the minimum concrete version a constraint names.
func baseVersion(constraint string) *semver.Version {
	token := versionTokenRe.FindString(constraint)
	if token == "" {
		return nil
	}
	v, err := semver.NewVersion(token)
	if err != nil {
		return nil
	}
	return v
}

// normalizeRange rewrites ecosystem range syntax that the semver library
// does not accept, e.g. Python's "==1.2.3".
func normalizeRange(r string) string {
	r = strings.ReplaceAll(r, "==", "=")
	return strings.TrimSpace(r)
}
