// Package registry fetches package metadata from public registries (the npm
// registry, PyPI) and exposes it as a dependency resolver for the
// transitive-graph walk.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/threatflux/pkgscan/internal/pkginfo"
)

const (
	DefaultNpmRegistry  = "https://registry.npmjs.org"
	DefaultPyPIRegistry = "https://pypi.org"

	requestTimeout = 30 * time.Second
)

// Client is an HTTP client for one package registry. It implements
// depgraph.Resolver: Resolve returns the runtime dependencies of a package's
// latest published version.
type Client struct {
	httpClient  *http.Client
	ecosystem   pkginfo.Ecosystem
	registryURL string
}

// NewClient creates a registry client for the given ecosystem. An empty
// registryURL selects the ecosystem's public registry.
func NewClient(eco pkginfo.Ecosystem, registryURL string) *Client {
	if registryURL == "" {
		switch eco {
		case pkginfo.EcosystemPython:
			registryURL = DefaultPyPIRegistry
		default:
			registryURL = DefaultNpmRegistry
		}
	}
	registryURL = strings.TrimRight(registryURL, "/")

	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		ecosystem:   eco,
		registryURL: registryURL,
	}
}

// Resolve fetches the runtime dependencies declared by the latest version of
// the named package.
func (c *Client) Resolve(ctx context.Context, name string) ([]pkginfo.Dependency, error) {
	switch c.ecosystem {
	case pkginfo.EcosystemPython:
		return c.resolvePyPI(ctx, name)
	default:
		return c.resolveNpm(ctx, name)
	}
}

// npmVersion is the subset of an npm version document the resolver needs.
type npmVersion struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

func (c *Client) resolveNpm(ctx context.Context, name string) ([]pkginfo.Dependency, error) {
	// The /latest route returns the version manifest directly, without the
	// full (and often very large) packument.
	reqURL := fmt.Sprintf("%s/%s/latest", c.registryURL, url.PathEscape(name))

	var doc npmVersion
	if err := c.getJSON(ctx, reqURL, name, &doc); err != nil {
		return nil, err
	}

	deps := make([]pkginfo.Dependency, 0, len(doc.Dependencies))
	for depName, constraint := range doc.Dependencies {
		deps = append(deps, pkginfo.Dependency{
			Name:       depName,
			Constraint: constraint,
			Kind:       pkginfo.KindRuntime,
		})
	}
	return deps, nil
}

// pypiProject is the subset of a PyPI JSON project document the resolver
// needs.
type pypiProject struct {
	Info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
}

func (c *Client) resolvePyPI(ctx context.Context, name string) ([]pkginfo.Dependency, error) {
	reqURL := fmt.Sprintf("%s/pypi/%s/json", c.registryURL, url.PathEscape(name))

	var doc pypiProject
	if err := c.getJSON(ctx, reqURL, name, &doc); err != nil {
		return nil, err
	}

	var deps []pkginfo.Dependency
	for _, spec := range doc.Info.RequiresDist {
		dep, ok := parseRequiresDist(spec)
		if !ok {
			continue
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// parseRequiresDist splits a PEP 508 requirement ("requests (>=2.0) ; extra
// == 'dev'") into a name and constraint. Requirements gated behind an extra
// marker are skipped: they are not runtime dependencies of a default install.
func parseRequiresDist(spec string) (pkginfo.Dependency, bool) {
	if marker := strings.IndexByte(spec, ';'); marker >= 0 {
		if strings.Contains(spec[marker:], "extra") {
			return pkginfo.Dependency{}, false
		}
		spec = spec[:marker]
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return pkginfo.Dependency{}, false
	}

	nameEnd := strings.IndexAny(spec, " (<>=!~")
	if nameEnd < 0 {
		return pkginfo.Dependency{Name: spec, Kind: pkginfo.KindRuntime}, true
	}
	constraint := strings.TrimSpace(spec[nameEnd:])
	constraint = strings.Trim(constraint, "()")
	return pkginfo.Dependency{
		Name:       spec[:nameEnd],
		Constraint: constraint,
		Kind:       pkginfo.KindRuntime,
	}, true
}

func (c *Client) getJSON(ctx context.Context, reqURL, name string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching package %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("package %q: registry returned status %d", name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding package %q: %w", name, err)
	}
	return nil
}
