// Package analyze orchestrates the risk assessment pipeline: manifest
// ingestion, the enabled detectors, and final aggregation, under one
// wall-clock budget.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/threatflux/pkgscan/internal/aggregate"
	"github.com/threatflux/pkgscan/internal/depgraph"
	"github.com/threatflux/pkgscan/internal/malscan"
	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/quality"
	"github.com/threatflux/pkgscan/internal/risk"
	"github.com/threatflux/pkgscan/internal/typosquat"
	"github.com/threatflux/pkgscan/internal/vulnmatch"
)

// ErrTimeout reports that the analysis budget expired before every detector
// finished. No partial result accompanies it: an incomplete scan reporting
// "no findings" would be a silent false negative.
var ErrTimeout = errors.New("analysis timed out")

// TimeoutError wraps ErrTimeout with the budget that was exceeded.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %s", e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Options selects which detectors run and bounds the run.
type Options struct {
	// AnalyzeDependencies enables the dependency-graph walk. When false,
	// vulnerability matching is skipped too: it has nothing to match.
	AnalyzeDependencies   bool
	CheckVulnerabilities  bool
	ScanMaliciousPatterns bool
	DetectTyposquatting   bool
	// MaxDependencyDepth bounds the transitive walk; 0 records the
	// declared dependencies without expanding them.
	MaxDependencyDepth int
	// Timeout is the wall-clock budget for the whole orchestration.
	Timeout time.Duration
}

// DefaultOptions enables every detector with a five-level walk and a
// five-minute budget.
func DefaultOptions() Options {
	return Options{
		AnalyzeDependencies:   true,
		CheckVulnerabilities:  true,
		ScanMaliciousPatterns: true,
		DetectTyposquatting:   true,
		MaxDependencyDepth:    5,
		Timeout:               300 * time.Second,
	}
}

// Config wires the analyzer's collaborators. Feed and Resolver may be nil,
// in which case the corresponding detectors degrade to their defaults.
type Config struct {
	Feed     vulnmatch.Feed
	Resolver depgraph.Resolver
	Corpus   *typosquat.Corpus
	// SimilarityCutoff tunes the typosquatting threshold; 0 selects the
	// package default.
	SimilarityCutoff float64
	Weights          aggregate.Weights
	Logger           *logrus.Logger
}

// Analyzer is the per-run entry point. It is safe for concurrent use: all
// collaborators are read-only during analysis.
type Analyzer struct {
	cfg      Config
	detector *typosquat.Detector
	matcher  *vulnmatch.Matcher
	log      *logrus.Logger
}

// New creates an Analyzer from the given configuration.
func New(cfg Config) *Analyzer {
	if cfg.Weights == (aggregate.Weights{}) {
		cfg.Weights = aggregate.DefaultWeights()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Analyzer{
		cfg:      cfg,
		detector: typosquat.NewDetector(cfg.Corpus, cfg.SimilarityCutoff),
		matcher:  vulnmatch.NewMatcher(cfg.Feed),
		log:      log,
	}
}

// Analyze ingests the package at path and assesses it. It fails fast only
// for unrecoverable input problems: a missing path, no recognizable
// manifest, or a malformed manifest.
func (a *Analyzer) Analyze(ctx context.Context, path string, opts Options) (*risk.AnalysisResult, error) {
	pkg, err := pkginfo.Load(path)
	if err != nil {
		return nil, err
	}
	return a.AnalyzePackage(ctx, pkg, opts)
}

// AnalyzePackage assesses an already-normalized package description.
func (a *Analyzer) AnalyzePackage(ctx context.Context, pkg *pkginfo.Package, opts Options) (*risk.AnalysisResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	a.log.WithFields(logrus.Fields{
		"package":   pkg.Name(),
		"ecosystem": pkg.Type,
	}).Debug("starting analysis")

	var (
		depAnalysis risk.DependencyAnalysis
		vulns       []risk.Vulnerability
		vulnWarns   []risk.Warning
		patterns    []risk.MaliciousPattern
		typoRisk    *risk.TyposquattingRisk
		metrics     = risk.DefaultQualityMetrics()
	)

	// The four branches are independent; the dependency walk feeds
	// vulnerability matching inside its own branch. Each branch writes
	// only its own slots, so no locking is needed.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !opts.AnalyzeDependencies {
			return nil
		}
		var err error
		depAnalysis, err = depgraph.NewWalker(a.cfg.Resolver, opts.MaxDependencyDepth).
			Walk(gctx, pkg.Dependencies)
		if err != nil {
			return err // context cancellation only
		}
		if opts.CheckVulnerabilities {
			vulns, vulnWarns = a.matcher.Match(gctx, depAnalysis.Dependencies)
		}
		return nil
	})

	g.Go(func() error {
		if opts.ScanMaliciousPatterns {
			patterns = malscan.Scan(pkg)
		}
		return nil
	})

	g.Go(func() error {
		if opts.DetectTyposquatting {
			t := a.detector.Detect(pkg.Name(), pkg.Type)
			typoRisk = &t
		}
		return nil
	})

	g.Go(func() error {
		metrics = quality.Evaluate(pkg)
		return nil
	})

	if err := g.Wait(); err != nil || ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Budget: opts.Timeout}
		}
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("analysis canceled: %w", err)
	}

	var typoScore float64
	if typoRisk != nil {
		typoScore = typosquat.Score(*typoRisk)
	}
	score := aggregate.Aggregate(aggregate.Input{
		SupplyChainScore:   depgraph.SupplyChainScore(depAnalysis.Breadth),
		VulnerabilityScore: vulnmatch.Score(vulns),
		MaliciousScore:     malscan.Score(patterns),
		TyposquatScore:     typoScore,
		Vulnerabilities:    vulns,
		MaliciousPatterns:  patterns,
	}, a.cfg.Weights)

	warnings := append(append([]risk.Warning(nil), depAnalysis.Warnings...), vulnWarns...)
	for _, w := range warnings {
		a.log.WithFields(logrus.Fields{
			"source":  w.Source,
			"subject": w.Subject,
		}).Warn(w.Message)
	}

	if vulns == nil {
		vulns = []risk.Vulnerability{}
	}
	if patterns == nil {
		patterns = []risk.MaliciousPattern{}
	}

	return &risk.AnalysisResult{
		Package: pkg,
		Assessment: risk.Assessment{
			Score:             score,
			Vulnerabilities:   vulns,
			MaliciousPatterns: patterns,
		},
		DependencyAnalysis: depAnalysis,
		Typosquatting:      typoRisk,
		Quality:            metrics,
		Warnings:           warnings,
	}, nil
}
