package vulnmatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/threatflux/pkgscan/internal/pkginfo"
)

const osvAPIURL = "https://api.osv.dev/v1/query"

// osvEcosystems maps our ecosystem tags to OSV ecosystem names.
var osvEcosystems = map[pkginfo.Ecosystem]string{
	pkginfo.EcosystemNpm:    "npm",
	pkginfo.EcosystemPython: "PyPI",
}

// OSVFeed queries the OSV.dev vulnerability API. Each lookup carries its own
// sub-timeout so a slow feed cannot consume the whole analysis budget.
type OSVFeed struct {
	httpClient   *http.Client
	url          string
	ecosystem    string
	queryTimeout time.Duration
}

// NewOSVFeed creates a feed for the given ecosystem.
func NewOSVFeed(eco pkginfo.Ecosystem) *OSVFeed {
	name, ok := osvEcosystems[eco]
	if !ok {
		name = string(eco)
	}
	return &OSVFeed{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		url:          osvAPIURL,
		ecosystem:    name,
		queryTimeout: 10 * time.Second,
	}
}

type osvQuery struct {
	Package osvPackage `json:"package"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvResponse struct {
	Vulns []osvVuln `json:"vulns"`
}

type osvVuln struct {
	ID       string        `json:"id"`
	Summary  string        `json:"summary"`
	Details  string        `json:"details"`
	Aliases  []string      `json:"aliases"`
	Severity []osvSeverity `json:"severity"`
	Affected []osvAffected `json:"affected"`
}

type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvAffected struct {
	Ranges []osvRange `json:"ranges"`
}

type osvRange struct {
	Type   string     `json:"type"`
	Events []osvEvent `json:"events"`
}

type osvEvent struct {
	Introduced string `json:"introduced"`
	Fixed      string `json:"fixed"`
}

// Lookup queries OSV for all known vulnerabilities of name.
func (o *OSVFeed) Lookup(ctx context.Context, name string) ([]Advisory, error) {
	ctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	body, err := json.Marshal(osvQuery{
		Package: osvPackage{Name: name, Ecosystem: o.ecosystem},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling OSV query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating OSV request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying OSV: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OSV API returned status %d", resp.StatusCode)
	}

	var osvResp osvResponse
	if err := json.NewDecoder(resp.Body).Decode(&osvResp); err != nil {
		return nil, fmt.Errorf("decoding OSV response: %w", err)
	}

	advisories := make([]Advisory, 0, len(osvResp.Vulns))
	for _, v := range osvResp.Vulns {
		adv := Advisory{
			ID:          v.ID,
			CVE:         firstCVE(v.Aliases),
			Description: firstNonEmpty(v.Summary, v.Details),
			Affected:    affectedRange(v.Affected),
		}
		for _, s := range v.Severity {
			switch s.Type {
			case "CVSS_V3":
				adv.CVSSVector = s.Score
			case "CVSS_V2":
				if adv.CVSSVector == "" {
					adv.CVSSVector = s.Score
				}
			}
		}
		advisories = append(advisories, adv)
	}
	return advisories, nil
}

func firstCVE(aliases []string) string {
	for _, a := range aliases {
		if len(a) > 4 && a[:4] == "CVE-" {
			return a
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// affectedRange flattens OSV introduced/fixed events into a semver range
// expression.
func affectedRange(affected []osvAffected) string {
	for _, a := range affected {
		for _, r := range a.Ranges {
			if r.Type != "SEMVER" && r.Type != "ECOSYSTEM" {
				continue
			}
			var introduced, fixed string
			for _, e := range r.Events {
				if e.Introduced != "" {
					introduced = e.Introduced
				}
				if e.Fixed != "" {
					fixed = e.Fixed
				}
			}
			switch {
			case fixed != "" && introduced != "" && introduced != "0":
				return ">=" + introduced + " <" + fixed
			case fixed != "":
				return "<" + fixed
			case introduced != "" && introduced != "0":
				return ">=" + introduced
			}
		}
	}
	// No range data: treat every version as affected.
	return ">=0.0.0"
}
