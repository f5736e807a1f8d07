// Package malscan scans manifest-declared scripts and bundled source text
// for suspicious constructs: remote fetch-and-execute, destructive filesystem
// operations, shell spawning, data exfiltration, and obfuscated payloads.
// Scanning is purely static; inspected content is never executed.
package malscan

import (
	"regexp"
	"sort"

	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/risk"
)

// detector tests one category of malicious behavior. All patterns in
// `all` must match for the detector to fire; requiring co-occurring
// constructs (e.g. a network call adjacent to an eval) keeps precision up
// against inputs like test runners that legitimately spawn subprocesses.
type detector struct {
	name        string
	description string
	severity    risk.Severity
	all         []*regexp.Regexp
}

func (d *detector) matches(content string) bool {
	for _, re := range d.all {
		if !re.MatchString(content) {
			return false
		}
	}
	return true
}

// detectors are applied in order; order is part of the deterministic output
// contract.
var detectors = []detector{
	{
		name:        "remote-code-exec",
		description: "Downloads remote content and pipes it into a shell or interpreter",
		severity:    risk.SeverityCritical,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(curl|wget|iwr|invoke-webrequest)\b|https?\.get|urllib\.request|\bfetch\s*\(`),
			regexp.MustCompile(`(?i)\|\s*(sh|bash|zsh|python[0-9.]*|node)\b|\bexec\b|\bsystem\s*\(|subprocess`),
		},
	},
	{
		name:        "obfuscated-payload",
		description: "Evaluates dynamically decoded code (base64/hex decode feeding eval)",
		severity:    risk.SeverityCritical,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)base64|b64decode|Buffer\.from\s*\(|\\x[0-9a-f]{2}\\x[0-9a-f]{2}`),
			regexp.MustCompile(`(?i)\beval\s*\(|\bexec\s*\(|new\s+Function\s*\(|\.toString\s*\(\s*\)\s*\)`),
		},
	},
	{
		name:        "destructive-fs",
		description: "Performs destructive filesystem operations against broad paths",
		severity:    risk.SeverityCritical,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\s|rmdir\s+/s|shutil\.rmtree|fs\.rm(dir)?Sync?\s*\(`),
		},
	},
	{
		name:        "shell-spawn",
		description: "Spawns a shell or subprocess from install-time code",
		severity:    risk.SeverityHigh,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)child_process|execSync|\bspawn\s*\(|subprocess\.(run|call|Popen)|os\.system\s*\(`),
		},
	},
	{
		name:        "data-exfiltration",
		description: "Reads sensitive local data alongside an outbound network call",
		severity:    risk.SeverityCritical,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\.ssh\b|\.npmrc\b|\.aws\b|\.env\b|\.bash_history\b|process\.env|os\.environ`),
			regexp.MustCompile(`(?i)\b(curl|wget)\b|https?://|fetch\s*\(|XMLHttpRequest|urlopen|requests\.(get|post)|dns\.lookup|net\.connect`),
		},
	},
	{
		name:        "network-call",
		description: "Makes an outbound network request from install-time code",
		severity:    risk.SeverityHigh,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(curl|wget)\s|https?\.get|\bfetch\s*\(|urllib\.request|urlopen|requests\.(get|post)`),
		},
	},
	{
		name:        "encoded-strings",
		description: "Contains base64 or hex/unicode escape obfuscation",
		severity:    risk.SeverityMedium,
		all: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Buffer\.from\s*\([^)]*base64|b64decode\s*\(|(\\x[0-9a-f]{2}){4,}|(\\u[0-9a-f]{4}){4,}`),
		},
	},
}

// lifecycleHooks are the manifest scripts an ecosystem executes
// automatically at install/build time.
var lifecycleHooks = map[pkginfo.Ecosystem][]string{
	pkginfo.EcosystemNpm: {
		"preinstall", "install", "postinstall",
		"preuninstall", "postuninstall", "prepare",
	},
	// Python has no manifest-level hooks; setup.py itself is the
	// install-time code and is scanned as a source.
	pkginfo.EcosystemPython: nil,
}

// Scan applies every detector to the package's scannable text: lifecycle
// script bodies plus any bundled source recorded by ingestion. Firings are
// deduplicated by (pattern name, location).
func Scan(pkg *pkginfo.Package) []risk.MaliciousPattern {
	type key struct{ name, location string }
	seen := map[key]bool{}
	var patterns []risk.MaliciousPattern

	scan := func(location, content string) {
		if content == "" {
			return
		}
		for i := range detectors {
			d := &detectors[i]
			if !d.matches(content) {
				continue
			}
			k := key{d.name, location}
			if seen[k] {
				continue
			}
			seen[k] = true
			patterns = append(patterns, risk.MaliciousPattern{
				Name:        d.name,
				Description: d.description,
				Location:    location,
				Severity:    d.severity,
			})
		}
	}

	for _, hook := range lifecycleHooks[pkg.Type] {
		if body, ok := pkg.Scripts[hook]; ok {
			scan("scripts."+hook, body)
		}
	}

	// Bundled sources, in stable order.
	names := make([]string, 0, len(pkg.Sources))
	for name := range pkg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		scan(name, pkg.Sources[name])
	}

	return patterns
}

// severityWeights are the additive contribution of one firing to the
// malicious-code component.
var severityWeights = map[risk.Severity]float64{
	risk.SeverityCritical: 25,
	risk.SeverityHigh:     15,
	risk.SeverityMedium:   5,
	risk.SeverityLow:      2,
}

// Score maps pattern firings to the 0-100 malicious_code component.
func Score(patterns []risk.MaliciousPattern) float64 {
	var score float64
	for _, p := range patterns {
		score += severityWeights[p.Severity]
	}
	if score > 100 {
		score = 100
	}
	return score
}
