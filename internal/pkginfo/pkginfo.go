// Package pkginfo models a normalized package description: common metadata,
// declared dependencies, and ecosystem-specific attributes, tagged by
// ecosystem. Instances are built once by manifest ingestion and never
// mutated afterwards.
package pkginfo

// Ecosystem identifies the package ecosystem a manifest belongs to.
type Ecosystem string

const (
	EcosystemNpm    Ecosystem = "npm"
	EcosystemPython Ecosystem = "python"
)

// DependencyKind distinguishes how a dependency is declared.
type DependencyKind string

const (
	KindRuntime  DependencyKind = "runtime"
	KindDev      DependencyKind = "dev"
	KindOptional DependencyKind = "optional"
)

// Dependency is one declared dependency reference.
type Dependency struct {
	Name       string         `json:"name"`
	Constraint string         `json:"constraint"`
	Kind       DependencyKind `json:"kind"`
}

// Metadata is the manifest metadata common to all ecosystems.
type Metadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	License     string   `json:"license,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
	Repository  string   `json:"repository,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	PublishDate string   `json:"publish_date,omitempty"`
}

// Package is a normalized, ecosystem-tagged package description.
type Package struct {
	Type     Ecosystem `json:"package_type"`
	Metadata Metadata  `json:"metadata"`
	// Dependencies lists runtime, dev, and optional dependencies declared
	// by the manifest.
	Dependencies []Dependency `json:"dependencies"`
	// Scripts maps lifecycle hook names to their bodies (npm scripts,
	// and any other manifest-declared executable one-liners).
	Scripts map[string]string `json:"scripts,omitempty"`
	// Sources maps source file names to scannable source text bundled
	// with the manifest (e.g. Python setup.py).
	Sources map[string]string `json:"-"`
	// Attributes carries loosely-typed ecosystem-specific fields that do
	// not fit the common metadata (e.g. npm "engines", python
	// "python_requires").
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Name returns the package name.
func (p *Package) Name() string { return p.Metadata.Name }

// Version returns the declared package version.
func (p *Package) Version() string { return p.Metadata.Version }

// RuntimeDependencies returns only the runtime-kind dependencies.
func (p *Package) RuntimeDependencies() []Dependency {
	var deps []Dependency
	for _, d := range p.Dependencies {
		if d.Kind == KindRuntime {
			deps = append(deps, d)
		}
	}
	return deps
}
