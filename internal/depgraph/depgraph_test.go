package depgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/threatflux/pkgscan/internal/pkginfo"
)

// mapResolver resolves dependencies from a fixed adjacency map.
type mapResolver struct {
	graph map[string][]pkginfo.Dependency
	fail  map[string]error
	calls map[string]int
}

func newMapResolver(graph map[string][]pkginfo.Dependency) *mapResolver {
	return &mapResolver{graph: graph, fail: map[string]error{}, calls: map[string]int{}}
}

func (r *mapResolver) Resolve(_ context.Context, name string) ([]pkginfo.Dependency, error) {
	r.calls[name]++
	if err := r.fail[name]; err != nil {
		return nil, err
	}
	return r.graph[name], nil
}

func dep(name string) pkginfo.Dependency {
	return pkginfo.Dependency{Name: name, Constraint: "^1.0.0", Kind: pkginfo.KindRuntime}
}

func TestWalkDepthBound(t *testing.T) {
	resolver := newMapResolver(map[string][]pkginfo.Dependency{
		"a": {dep("b")},
		"b": {dep("c")},
		"c": {dep("d")},
		"d": {dep("e")},
	})

	tests := []struct {
		name        string
		maxDepth    int
		wantBreadth int
		wantDepth   int
	}{
		{"metadata only", 0, 1, 0},
		{"one level", 1, 2, 1},
		{"two levels", 2, 3, 2},
		{"deeper than graph", 10, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWalker(resolver, tt.maxDepth)
			analysis, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("a")})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if analysis.Breadth != tt.wantBreadth {
				t.Errorf("Breadth = %d, want %d", analysis.Breadth, tt.wantBreadth)
			}
			if analysis.ResolvedDepth != tt.wantDepth {
				t.Errorf("ResolvedDepth = %d, want %d", analysis.ResolvedDepth, tt.wantDepth)
			}
		})
	}
}

func TestWalkBreaksCycles(t *testing.T) {
	resolver := newMapResolver(map[string][]pkginfo.Dependency{
		"a": {dep("b")},
		"b": {dep("a")}, // cycle back
	})

	w := NewWalker(resolver, 10)
	analysis, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("a")})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if analysis.Breadth != 2 {
		t.Errorf("Breadth = %d, want 2", analysis.Breadth)
	}
	if resolver.calls["a"] != 1 || resolver.calls["b"] != 1 {
		t.Errorf("cycle caused re-expansion: calls = %v", resolver.calls)
	}
}

func TestWalkLookupFailureIsNonFatal(t *testing.T) {
	resolver := newMapResolver(map[string][]pkginfo.Dependency{
		"good": {dep("child")},
	})
	resolver.fail["bad"] = errors.New("registry unreachable")

	w := NewWalker(resolver, 2)
	analysis, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("good"), dep("bad")})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(analysis.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(analysis.Warnings))
	}
	if analysis.Warnings[0].Subject != "bad" {
		t.Errorf("warning subject = %q, want %q", analysis.Warnings[0].Subject, "bad")
	}
	// The healthy branch is still expanded.
	if analysis.Breadth != 3 {
		t.Errorf("Breadth = %d, want 3", analysis.Breadth)
	}
}

func TestWalkNilResolver(t *testing.T) {
	w := NewWalker(nil, 5)
	analysis, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("a"), dep("b")})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if analysis.Breadth != 2 || analysis.ResolvedDepth != 0 {
		t.Errorf("analysis = breadth %d depth %d, want 2/0", analysis.Breadth, analysis.ResolvedDepth)
	}
}

func TestWalkDeterministicOrder(t *testing.T) {
	resolver := newMapResolver(map[string][]pkginfo.Dependency{
		"root": {dep("zeta"), dep("alpha"), dep("mid")},
	})

	w := NewWalker(resolver, 1)
	first, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("root")})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := w.Walk(context.Background(), []pkginfo.Dependency{dep("root")})
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Dependencies) != len(first.Dependencies) {
			t.Fatalf("run %d: %d deps, want %d", i, len(again.Dependencies), len(first.Dependencies))
		}
		for j := range first.Dependencies {
			if again.Dependencies[j].Name != first.Dependencies[j].Name {
				t.Fatalf("run %d: order differs at %d", i, j)
			}
		}
	}
}

func TestSupplyChainScore(t *testing.T) {
	if got := SupplyChainScore(0); got != 0 {
		t.Errorf("SupplyChainScore(0) = %v, want 0", got)
	}

	// Monotonic in breadth, bounded by 100.
	prev := 0.0
	for _, breadth := range []int{1, 2, 5, 10, 50, 200, 10000} {
		got := SupplyChainScore(breadth)
		if got < prev {
			t.Errorf("SupplyChainScore(%d) = %v, decreased from %v", breadth, got, prev)
		}
		if got > 100 {
			t.Errorf("SupplyChainScore(%d) = %v, exceeds 100", breadth, got)
		}
		prev = got
	}
}
