package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/threatflux/pkgscan/internal/aggregate"
	"github.com/threatflux/pkgscan/internal/analyze"
	"github.com/threatflux/pkgscan/internal/depgraph"
	"github.com/threatflux/pkgscan/internal/pkginfo"
	"github.com/threatflux/pkgscan/internal/registry"
	"github.com/threatflux/pkgscan/internal/report"
	"github.com/threatflux/pkgscan/internal/risk"
	"github.com/threatflux/pkgscan/internal/typosquat"
	"github.com/threatflux/pkgscan/internal/vulnmatch"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	format        string
	outputFile    string
	timeoutSecs   int
	maxDepth      int
	noDeps        bool
	noVulns       bool
	noMalwareScan bool
	noTyposquat   bool
	feedPath      string
	useOSV        bool
	resolve       bool
	registryURL   string
	failOn        string
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pkgscan <path>",
		Short: "Assess the supply-chain risk of a software package",
		Long: `pkgscan analyzes an npm or Python package and produces a structured
risk verdict: known-vulnerability matches, malicious install-time code,
typosquatting likelihood, dependency exposure, and quality signals.

Examples:
  pkgscan ./my-package
  pkgscan ./my-package --format json --output report.json
  pkgscan ./my-package --feed vulns.yaml --fail-on high`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Args:    cobra.ExactArgs(1),
		RunE:    run,
	}

	rootCmd.Flags().StringVar(&format, "format", "terminal", "output format (terminal, json, markdown)")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write report to file instead of stdout")
	rootCmd.Flags().IntVar(&timeoutSecs, "timeout", 300, "analysis timeout in seconds")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 5, "maximum transitive dependency depth to walk")
	rootCmd.Flags().BoolVar(&noDeps, "no-deps", false, "skip dependency graph analysis (and vulnerability matching)")
	rootCmd.Flags().BoolVar(&noVulns, "no-vulns", false, "skip vulnerability matching")
	rootCmd.Flags().BoolVar(&noMalwareScan, "no-malware-scan", false, "skip malicious pattern scanning")
	rootCmd.Flags().BoolVar(&noTyposquat, "no-typosquat", false, "skip typosquatting detection")
	rootCmd.Flags().StringVar(&feedPath, "feed", "", "path to a YAML vulnerability feed snapshot")
	rootCmd.Flags().BoolVar(&useOSV, "osv", false, "query the OSV.dev API for vulnerabilities")
	rootCmd.Flags().BoolVar(&resolve, "resolve", false, "resolve transitive dependencies against the package registry")
	rootCmd.Flags().StringVar(&registryURL, "registry", "", "registry base URL for --resolve (default: the ecosystem's public registry)")
	rootCmd.Flags().StringVar(&failOn, "fail-on", "", "exit with code 2 if overall risk meets/exceeds level (low, medium, high, critical)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.message)
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

// exitError signals a non-standard exit code (2 for --fail-on).
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func initConfig() {
	viper.SetConfigName(".pkgscan")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("PKGSCAN")
	viper.AutomaticEnv()

	viper.SetDefault("similarity_cutoff", typosquat.DefaultCutoff)
	viper.SetDefault("weights.malicious_code", 0.35)
	viper.SetDefault("weights.vulnerability", 0.30)
	viper.SetDefault("weights.supply_chain", 0.20)
	viper.SetDefault("weights.typosquatting", 0.15)

	_ = viper.ReadInConfig() // optional config file
}

func run(cmd *cobra.Command, args []string) error {
	initConfig()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	feed, err := buildFeed(args[0])
	if err != nil {
		return err
	}

	var resolver depgraph.Resolver
	if resolve {
		resolver = registry.NewClient(detectEcosystem(args[0]), registryURL)
	}

	analyzer := analyze.New(analyze.Config{
		Feed:             feed,
		Resolver:         resolver,
		Corpus:           typosquat.DefaultCorpus(),
		SimilarityCutoff: viper.GetFloat64("similarity_cutoff"),
		Weights: aggregate.Weights{
			MaliciousCode: viper.GetFloat64("weights.malicious_code"),
			Vulnerability: viper.GetFloat64("weights.vulnerability"),
			SupplyChain:   viper.GetFloat64("weights.supply_chain"),
			Typosquatting: viper.GetFloat64("weights.typosquatting"),
		},
		Logger: log,
	})

	opts := analyze.Options{
		AnalyzeDependencies:   !noDeps,
		CheckVulnerabilities:  !noVulns,
		ScanMaliciousPatterns: !noMalwareScan,
		DetectTyposquatting:   !noTyposquat,
		MaxDependencyDepth:    maxDepth,
		Timeout:               time.Duration(timeoutSecs) * time.Second,
	}

	result, err := analyzer.Analyze(context.Background(), args[0], opts)
	if err != nil {
		return err
	}

	out, cleanup, err := resolveOutput()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := report.New(out, format).Render(result); err != nil {
		return err
	}

	if failOn != "" {
		threshold, err := risk.ParseLevel(failOn)
		if err != nil {
			return err
		}
		if result.RiskLevel() >= threshold {
			return &exitError{
				code:    2,
				message: fmt.Sprintf("risk level %s meets --fail-on threshold %s", result.RiskLevel(), threshold),
			}
		}
	}
	return nil
}

// buildFeed selects the vulnerability feed: a YAML snapshot, the OSV API,
// or none (vulnerability matching degrades to empty results).
func buildFeed(path string) (vulnmatch.Feed, error) {
	switch {
	case feedPath != "":
		return vulnmatch.LoadStaticFeed(feedPath)
	case useOSV:
		return vulnmatch.NewOSVFeed(detectEcosystem(path)), nil
	default:
		return nil, nil
	}
}

// detectEcosystem is a best-effort peek used only to parameterize the OSV
// feed; ingestion performs the authoritative detection.
func detectEcosystem(path string) pkginfo.Ecosystem {
	if pkg, err := pkginfo.Load(path); err == nil {
		return pkg.Type
	}
	return pkginfo.EcosystemNpm
}

func resolveOutput() (io.Writer, func(), error) {
	if outputFile == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
