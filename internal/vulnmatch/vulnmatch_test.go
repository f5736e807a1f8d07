package vulnmatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatflux/pkgscan/internal/pkginfo"
)

func runtimeDep(name, constraint string) pkginfo.Dependency {
	return pkginfo.Dependency{Name: name, Constraint: constraint, Kind: pkginfo.KindRuntime}
}

func testFeed() *StaticFeed {
	return NewStaticFeed(map[string][]Advisory{
		"lodash": {
			{
				ID:          "GHSA-p6mc-m468-83gw",
				CVE:         "CVE-2020-8203",
				Description: "Prototype pollution in lodash",
				Affected:    "<4.17.19",
				Severity:    7.4,
			},
		},
		"node-serialize": {
			{
				ID:          "GHSA-node-serialize",
				CVE:         "CVE-2017-5941",
				Description: "Remote code execution via untrusted deserialization",
				Affected:    "<=0.0.4",
				CVSSVector:  "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			},
		},
		"minimist": {
			{
				ID:          "GHSA-no-severity",
				Description: "Argument injection",
				Affected:    "<1.2.6",
			},
		},
	})
}

func TestMatchExactVersion(t *testing.T) {
	m := NewMatcher(testFeed())

	vulns, warnings := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("lodash", "4.0.0"),
	})

	require.Len(t, vulns, 1)
	assert.Empty(t, warnings)
	v := vulns[0]
	assert.Equal(t, "CVE-2020-8203", v.CVEID)
	assert.Equal(t, "GHSA-p6mc-m468-83gw", v.AdvisoryID)
	assert.NotEmpty(t, v.Description)
	assert.Equal(t, 7.4, v.Severity)
	assert.Equal(t, "lodash", v.Dependency)
}

func TestMatchRangeConstraint(t *testing.T) {
	m := NewMatcher(testFeed())

	tests := []struct {
		name       string
		constraint string
		wantMatch  bool
	}{
		{"caret below fix", "^4.17.0", true},
		{"caret above fix", "^4.17.21", false},
		{"exact patched", "4.17.21", false},
		{"tilde vulnerable", "~4.16.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns, _ := m.Match(context.Background(), []pkginfo.Dependency{
				runtimeDep("lodash", tt.constraint),
			})
			if tt.wantMatch {
				assert.Len(t, vulns, 1)
			} else {
				assert.Empty(t, vulns)
			}
		})
	}
}

func TestMatchDeduplicatesByAdvisory(t *testing.T) {
	m := NewMatcher(testFeed())

	// The same advisory must not be reported once per dependency entry.
	vulns, _ := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("lodash", "4.0.0"),
		{Name: "lodash", Constraint: "4.1.0", Kind: pkginfo.KindDev},
	})
	assert.Len(t, vulns, 1)
}

func TestMatchSeverityFromCVSSVector(t *testing.T) {
	m := NewMatcher(testFeed())

	vulns, _ := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("node-serialize", "0.0.4"),
	})
	require.Len(t, vulns, 1)
	assert.InDelta(t, 9.8, vulns[0].Severity, 0.01)
}

func TestMatchDefaultSeverity(t *testing.T) {
	m := NewMatcher(testFeed())

	vulns, _ := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("minimist", "1.2.0"),
	})
	require.Len(t, vulns, 1)
	assert.Equal(t, defaultSeverity, vulns[0].Severity)
}

type failingFeed struct{}

func (failingFeed) Lookup(context.Context, string) ([]Advisory, error) {
	return nil, errors.New("feed timeout")
}

func TestMatchFeedFailureDegrades(t *testing.T) {
	m := NewMatcher(failingFeed{})

	vulns, warnings := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("lodash", "4.0.0"),
	})
	assert.Empty(t, vulns)
	require.Len(t, warnings, 1)
	assert.Equal(t, "vulnerability-feed", warnings[0].Source)
	assert.Equal(t, "lodash", warnings[0].Subject)
}

func TestMatchNilFeed(t *testing.T) {
	m := NewMatcher(nil)
	vulns, warnings := m.Match(context.Background(), []pkginfo.Dependency{runtimeDep("lodash", "4.0.0")})
	assert.Empty(t, vulns)
	assert.Empty(t, warnings)
}

func TestScoreIsMaxNotSum(t *testing.T) {
	m := NewMatcher(NewStaticFeed(map[string][]Advisory{
		"a": {{ID: "A1", Description: "low 1", Affected: ">=0.0.0", Severity: 2.0}},
		"b": {{ID: "B1", Description: "low 2", Affected: ">=0.0.0", Severity: 3.0}},
		"c": {{ID: "C1", Description: "worst", Affected: ">=0.0.0", Severity: 8.0}},
	}))

	vulns, _ := m.Match(context.Background(), []pkginfo.Dependency{
		runtimeDep("a", "1.0.0"), runtimeDep("b", "1.0.0"), runtimeDep("c", "1.0.0"),
	})
	require.Len(t, vulns, 3)
	assert.Equal(t, 80.0, Score(vulns))
	assert.Equal(t, 0.0, Score(nil))
}

func TestLoadStaticFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	err := os.WriteFile(path, []byte(`
lodash:
  - id: GHSA-p6mc-m468-83gw
    cve: CVE-2020-8203
    description: Prototype pollution in lodash
    affected: "<4.17.19"
    severity: 7.4
minimist:
  - id: GHSA-no-severity
    description: Argument injection
    affected: "<1.2.6"
`), 0o644)
	require.NoError(t, err)

	feed, err := LoadStaticFeed(path)
	require.NoError(t, err)

	advs, err := feed.Lookup(context.Background(), "lodash")
	require.NoError(t, err)
	require.Len(t, advs, 1)
	assert.Equal(t, "CVE-2020-8203", advs[0].CVE)
	assert.Equal(t, 7.4, advs[0].Severity)

	none, err := feed.Lookup(context.Background(), "unlisted")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = LoadStaticFeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRangeMatches(t *testing.T) {
	tests := []struct {
		constraint string
		affected   string
		want       bool
	}{
		{"4.0.0", "<4.17.19", true},
		{"4.17.19", "<4.17.19", false},
		{"==1.11.0", "==1.11.0", true},
		{">=2.0,<3", ">=1.0.0 <2.5.0", true},
		{"", "<1.0.0", false},
		{"1.0.0", "not-a-range", false},
	}

	for _, tt := range tests {
		t.Run(tt.constraint+"/"+tt.affected, func(t *testing.T) {
			assert.Equal(t, tt.want, rangeMatches(tt.constraint, tt.affected))
		})
	}
}
