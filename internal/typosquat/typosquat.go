// Package typosquat compares a package name against a corpus of popular
// package names, flagging names close enough to be plausible typo traps.
package typosquat

import (
	"sort"
	"strings"

	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/risk"
)

// DefaultCutoff is the similarity a corpus entry must reach to count as a
// candidate. Tunable: lower it to trade precision for recall.
const DefaultCutoff = 0.75

// patternConfidence is assigned when a name is a structural variant of a
// popular name (hyphen/affix tricks) even if raw edit distance is large.
const patternConfidence = 0.85

// Corpus is a read-only set of popular package names per ecosystem. It is
// safe for concurrent reads and never mutated during analysis.
type Corpus struct {
	names map[pkginfo.Ecosystem][]string
}

// NewCorpus builds a corpus from per-ecosystem name lists.
func NewCorpus(names map[pkginfo.Ecosystem][]string) *Corpus {
	snapshot := make(map[pkginfo.Ecosystem][]string, len(names))
	for eco, list := range names {
		snapshot[eco] = append([]string(nil), list...)
	}
	return &Corpus{names: snapshot}
}

// Names returns the popular names for an ecosystem.
func (c *Corpus) Names(eco pkginfo.Ecosystem) []string {
	return c.names[eco]
}

// DefaultCorpus covers the most-installed packages of each supported
// ecosystem; these are the names attackers squat on.
func DefaultCorpus() *Corpus {
	return NewCorpus(map[pkginfo.Ecosystem][]string{
		pkginfo.EcosystemNpm: {
			"express", "react", "angular", "vue", "lodash", "axios",
			"moment", "webpack", "babel", "typescript", "eslint", "prettier",
			"jest", "mocha", "chai", "next", "nuxt", "svelte",
			"underscore", "jquery", "bootstrap", "tailwindcss",
			"commander", "chalk", "inquirer", "yargs", "minimist",
			"request", "node-fetch", "got", "superagent",
			"mongoose", "sequelize", "knex", "prisma",
			"socket.io", "ws", "rxjs", "ramda",
			"debug", "dotenv", "uuid", "nanoid", "cross-env",
		},
		pkginfo.EcosystemPython: {
			"requests", "urllib3", "numpy", "pandas", "scipy",
			"django", "flask", "fastapi", "sqlalchemy", "celery",
			"pillow", "beautifulsoup4", "lxml", "sklearn", "scikit-learn",
			"tensorflow", "torch", "matplotlib", "pytest", "setuptools",
			"boto3", "botocore", "cryptography", "pyyaml", "click",
		},
	})
}

// candidate pairs a corpus name with its similarity to the analyzed name.
type candidate struct {
	name       string
	similarity float64
}

// Detector scores names against a corpus.
type Detector struct {
	corpus *Corpus
	cutoff float64
}

// NewDetector creates a Detector. A zero cutoff selects DefaultCutoff.
func NewDetector(corpus *Corpus, cutoff float64) *Detector {
	if corpus == nil {
		corpus = DefaultCorpus()
	}
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &Detector{corpus: corpus, cutoff: cutoff}
}

// Detect assesses the typosquatting likelihood of name within its
// ecosystem. An exact corpus match short-circuits to "not typosquatting":
// the package genuinely is the popular one.
func (d *Detector) Detect(name string, eco pkginfo.Ecosystem) risk.TyposquattingRisk {
	normalized := normalize(name)

	var candidates []candidate
	for _, popular := range d.corpus.Names(eco) {
		popNorm := normalize(popular)
		if normalized == popNorm {
			return risk.TyposquattingRisk{}
		}

		sim := similarity(normalized, popNorm)
		if sim < d.cutoff && isVariant(normalized, popNorm) {
			sim = patternConfidence
		}
		if sim >= d.cutoff {
			candidates = append(candidates, candidate{name: popular, similarity: sim})
		}
	}

	if len(candidates) == 0 {
		return risk.TyposquattingRisk{}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].name < candidates[j].name
	})

	similar := make([]string, len(candidates))
	for i, c := range candidates {
		similar[i] = c.name
	}
	return risk.TyposquattingRisk{
		Flagged:         true,
		SimilarPackages: similar,
		Confidence:      candidates[0].similarity,
	}
}

// Score maps a typosquatting assessment to the 0-100 component.
func Score(t risk.TyposquattingRisk) float64 {
	if !t.Flagged {
		return 0
	}
	return t.Confidence * 100
}

// normalize strips an npm scope prefix and lowercases, so "@Scope/Lodash"
// compares as "lodash".
func normalize(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ToLower(name)
}

// similarity is the Damerau-Levenshtein distance normalized by the longer
// name's length, inverted so 1.0 means identical.
func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := damerauLevenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// isVariant catches structural squats that survive a large edit distance:
// hyphen/underscore insertion or removal, and common affix tricks
// ("lodash-js", "node-express", "requests3").
func isVariant(name, popular string) bool {
	strip := func(s string) string {
		s = strings.ReplaceAll(s, "-", "")
		return strings.ReplaceAll(s, "_", "")
	}
	if name != popular && strip(name) == strip(popular) {
		return true
	}
	for _, affix := range []string{"js", "-js", ".js", "node-", "-node", "py-", "-py", "python-", "3", "2"} {
		if name == popular+affix || name == affix+popular {
			return true
		}
	}
	return false
}

// damerauLevenshtein computes edit distance counting adjacent transpositions
// as a single edit, the classic typo model ("lodahs" is one swap from
// "lodash").
func damerauLevenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	d := make([][]int, len(a)+1)
	for i := range d {
		d[i] = make([]int, len(b)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = minInt(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				d[i][j] = minInt(d[i][j], d[i-2][j-2]+1) // transposition
			}
		}
	}
	return d[len(a)][len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
