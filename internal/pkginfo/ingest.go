package pkginfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrNoManifest is returned when a directory contains no recognizable
// package manifest.
var ErrNoManifest = errors.New("no recognizable package manifest found")

// ParseError reports a manifest that exists but is not well-formed for its
// ecosystem. It is a fatal error for the whole analysis.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load ingests the package rooted at path and produces a normalized Package.
// path may be a directory containing a manifest or the manifest file itself.
// It fails with ErrNoManifest when nothing recognizable is found and with a
// ParseError when a manifest is malformed.
func Load(path string) (*Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("package path: %w", err)
	}

	if !info.IsDir() {
		return loadManifestFile(path)
	}

	if pj := filepath.Join(path, "package.json"); fileExists(pj) {
		return loadNpm(pj)
	}
	setupPy := filepath.Join(path, "setup.py")
	reqTxt := filepath.Join(path, "requirements.txt")
	if fileExists(setupPy) || fileExists(reqTxt) {
		return loadPython(setupPy, reqTxt)
	}

	return nil, fmt.Errorf("%s: %w", path, ErrNoManifest)
}

func loadManifestFile(path string) (*Package, error) {
	switch filepath.Base(path) {
	case "package.json":
		return loadNpm(path)
	case "setup.py":
		return loadPython(path, filepath.Join(filepath.Dir(path), "requirements.txt"))
	case "requirements.txt":
		return loadPython(filepath.Join(filepath.Dir(path), "setup.py"), path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrNoManifest)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// npmManifest mirrors the package.json fields the analyzer consumes.
type npmManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Author               any               `json:"author"`
	License              string            `json:"license"`
	Homepage             string            `json:"homepage"`
	Repository           any               `json:"repository"`
	Keywords             []string          `json:"keywords"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Engines              map[string]string `json:"engines"`
}

func loadNpm(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m npmManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if m.Name == "" {
		return nil, &ParseError{Path: path, Err: errors.New("missing package name")}
	}

	pkg := &Package{
		Type: EcosystemNpm,
		Metadata: Metadata{
			Name:        m.Name,
			Version:     m.Version,
			Description: m.Description,
			Author:      stringifyAuthor(m.Author),
			License:     m.License,
			Homepage:    m.Homepage,
			Repository:  stringifyRepository(m.Repository),
			Keywords:    m.Keywords,
		},
		Scripts:    m.Scripts,
		Attributes: map[string]any{},
	}
	if len(m.Engines) > 0 {
		pkg.Attributes["engines"] = m.Engines
	}

	pkg.Dependencies = append(pkg.Dependencies, depsOf(m.Dependencies, KindRuntime)...)
	pkg.Dependencies = append(pkg.Dependencies, depsOf(m.DevDependencies, KindDev)...)
	pkg.Dependencies = append(pkg.Dependencies, depsOf(m.OptionalDependencies, KindOptional)...)

	return pkg, nil
}

// depsOf converts a name->constraint map into a sorted dependency slice.
// Sorting keeps repeated analyses deterministic.
func depsOf(m map[string]string, kind DependencyKind) []Dependency {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make([]Dependency, 0, len(names))
	for _, name := range names {
		deps = append(deps, Dependency{Name: name, Constraint: m[name], Kind: kind})
	}
	return deps
}

func stringifyAuthor(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]any:
		if name, ok := a["name"].(string); ok {
			return name
		}
	}
	return ""
}

func stringifyRepository(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case map[string]any:
		if url, ok := r["url"].(string); ok {
			return url
		}
	}
	return ""
}

var (
	setupFieldRe = regexp.MustCompile(`(?m)\b(name|version|description|author|license|url)\s*=\s*["']([^"']*)["']`)
	installReqRe = regexp.MustCompile(`(?s)install_requires\s*=\s*\[(.*?)\]`)
	reqEntryRe   = regexp.MustCompile(`["']([^"']+)["']`)
)

func loadPython(setupPath, requirementsPath string) (*Package, error) {
	pkg := &Package{
		Type:       EcosystemPython,
		Attributes: map[string]any{},
		Sources:    map[string]string{},
	}

	haveSetup := fileExists(setupPath)
	haveRequirements := fileExists(requirementsPath)
	if !haveSetup && !haveRequirements {
		return nil, ErrNoManifest
	}

	seen := map[string]bool{}
	if haveSetup {
		data, err := os.ReadFile(setupPath)
		if err != nil {
			return nil, fmt.Errorf("reading setup.py: %w", err)
		}
		src := string(data)
		pkg.Sources["setup.py"] = src

		if !strings.Contains(src, "setup") {
			return nil, &ParseError{Path: setupPath, Err: errors.New("no setup() call found")}
		}
		for _, m := range setupFieldRe.FindAllStringSubmatch(src, -1) {
			switch m[1] {
			case "name":
				pkg.Metadata.Name = m[2]
			case "version":
				pkg.Metadata.Version = m[2]
			case "description":
				pkg.Metadata.Description = m[2]
			case "author":
				pkg.Metadata.Author = m[2]
			case "license":
				pkg.Metadata.License = m[2]
			case "url":
				pkg.Metadata.Homepage = m[2]
			}
		}
		if block := installReqRe.FindStringSubmatch(src); block != nil {
			for _, entry := range reqEntryRe.FindAllStringSubmatch(block[1], -1) {
				if dep, ok := parseRequirement(entry[1]); ok && !seen[dep.Name] {
					seen[dep.Name] = true
					pkg.Dependencies = append(pkg.Dependencies, dep)
				}
			}
		}
	}

	if haveRequirements {
		data, err := os.ReadFile(requirementsPath)
		if err != nil {
			return nil, fmt.Errorf("reading requirements.txt: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
				continue
			}
			if dep, ok := parseRequirement(line); ok && !seen[dep.Name] {
				seen[dep.Name] = true
				pkg.Dependencies = append(pkg.Dependencies, dep)
			}
		}
	}

	if pkg.Metadata.Name == "" {
		if haveSetup {
			return nil, &ParseError{Path: setupPath, Err: errors.New("missing package name")}
		}
		// requirements.txt alone carries no package identity; synthesize
		// one from the directory so downstream detectors have a name.
		pkg.Metadata.Name = filepath.Base(filepath.Dir(requirementsPath))
	}

	return pkg, nil
}

var requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(.*)$`)

// parseRequirement splits a PEP 508-ish requirement line such as
// "django==1.11.0" or "requests>=2.0,<3" into name and constraint.
func parseRequirement(line string) (Dependency, bool) {
	if i := strings.IndexAny(line, ";#"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	m := requirementRe.FindStringSubmatch(line)
	if m == nil {
		return Dependency{}, false
	}
	return Dependency{
		Name:       strings.ToLower(m[1]),
		Constraint: strings.TrimSpace(m[2]),
		Kind:       KindRuntime,
	}, true
}
