// Package depgraph walks a package's declared dependency graph breadth-first
// to a bounded depth, producing the dependency set fed to vulnerability
// matching and the supply-chain breadth metric.
package depgraph

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/risk"
)

// Resolver returns the declared dependencies of a named package. It is the
// external metadata collaborator; lookups may fail per-entry.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]pkginfo.Dependency, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) ([]pkginfo.Dependency, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) ([]pkginfo.Dependency, error) {
	return f(ctx, name)
}

// lookupConcurrency bounds concurrent resolver calls within one level.
const lookupConcurrency = 8

// Walker expands a dependency graph.
type Walker struct {
	resolver Resolver
	maxDepth int
}

// NewWalker creates a Walker. maxDepth 0 means the declared dependencies are
// recorded but never expanded. A nil resolver likewise disables expansion.
func NewWalker(resolver Resolver, maxDepth int) *Walker {
	return &Walker{resolver: resolver, maxDepth: maxDepth}
}

// Walk expands the declared dependencies breadth-first up to the depth bound.
// Cycles are broken by tracking visited names: a name already seen at a
// shallower or equal depth is not re-expanded. Resolver failures degrade to
// warnings; only context cancellation aborts the walk.
func (w *Walker) Walk(ctx context.Context, direct []pkginfo.Dependency) (risk.DependencyAnalysis, error) {
	analysis := risk.DependencyAnalysis{
		Dependencies: append([]pkginfo.Dependency(nil), direct...),
	}

	visited := make(map[string]bool, len(direct))
	frontier := make([]pkginfo.Dependency, 0, len(direct))
	for _, d := range direct {
		if !visited[d.Name] {
			visited[d.Name] = true
			frontier = append(frontier, d)
		}
	}

	var mu sync.Mutex
	for depth := 0; depth < w.maxDepth && len(frontier) > 0 && w.resolver != nil; depth++ {
		if err := ctx.Err(); err != nil {
			return analysis, err
		}

		var next []pkginfo.Dependency
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(lookupConcurrency)
		for _, dep := range frontier {
			dep := dep
			g.Go(func() error {
				children, err := w.resolver.Resolve(gctx, dep.Name)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// Recorded and excluded from further matching,
					// never fatal to the run.
					analysis.Warnings = append(analysis.Warnings, risk.Warning{
						Source:  "dependency-resolution",
						Subject: dep.Name,
						Message: err.Error(),
					})
					return nil
				}
				for _, child := range children {
					if visited[child.Name] {
						continue
					}
					visited[child.Name] = true
					next = append(next, child)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return analysis, err
		}
		if len(next) == 0 {
			analysis.ResolvedDepth = depth + 1
			break
		}

		// Goroutine completion order is nondeterministic; sort so that
		// repeated walks yield identical analyses.
		sort.Slice(next, func(i, j int) bool { return next[i].Name < next[j].Name })
		analysis.Dependencies = append(analysis.Dependencies, next...)
		analysis.ResolvedDepth = depth + 1
		frontier = next
	}

	analysis.Breadth = len(visited)
	sortWarnings(analysis.Warnings)
	return analysis, nil
}

func sortWarnings(ws []risk.Warning) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Subject < ws[j].Subject })
}

// SupplyChainScore maps the distinct-dependency breadth to a 0-100 score.
// The scale is logarithmic: each doubling past the first few dependencies
// adds a fixed increment, so sprawling trees rank high without a handful of
// dependencies maxing the scale out.
func SupplyChainScore(breadth int) float64 {
	if breadth <= 0 {
		return 0
	}
	score := 25 * math.Log2(1+float64(breadth)/5)
	return math.Min(score, 100)
}
