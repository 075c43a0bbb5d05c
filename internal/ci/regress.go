// Package ci provides the offline regression gate for triage quality.
// A gold manifest pins expected outcomes for a corpus of denial letters;
// Evaluate compares actual pipeline results against it and CheckGates
// enforces the hallucination and evidence-coverage thresholds.
package ci

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/claims-triage/internal/model"
)

// GoldCase pins the expected outcome for one denial letter.
type GoldCase struct {
	File             string  `yaml:"file"`
	ExpectedDecision string  `yaml:"expected_decision"`
	MinConfidence    float64 `yaml:"min_confidence,omitempty"`
	ClaimNumber      string  `yaml:"claim_number,omitempty"`
	Adversarial      bool    `yaml:"adversarial,omitempty"`
}

// Manifest is the gold corpus definition.
type Manifest struct {
	Cases []GoldCase `yaml:"cases"`
}

// LoadManifest reads a gold manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ci: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "ci: parse manifest %s", path)
	}
	if len(m.Cases) == 0 {
		return nil, eris.Errorf("ci: manifest %s has no cases", path)
	}
	return &m, nil
}

// CaseResult is the observed pipeline outcome for one letter.
type CaseResult struct {
	File               string
	Decision           model.DecisionType
	Confidence         float64
	ClaimNumber        string
	CitationCoverage   float64
	HallucinationCount int
	TotalCitations     int
	Err                string
}

// CaseOutcome pairs a gold case with its observed result and verdict.
type CaseOutcome struct {
	Gold    GoldCase
	Result  CaseResult
	Pass    bool
	Reasons []string
}

// Report aggregates per-case verdicts and corpus-level quality metrics.
type Report struct {
	Cases             []CaseOutcome
	Total             int
	Passed            int
	DecisionAccuracy  float64
	AdversarialTotal  int
	AdversarialCaught int
	HallucinationRate float64
	EvidenceCoverage  float64
}

// Evaluate compares observed results against the gold manifest, keyed by
// file. A gold case with no result counts as a failure.
func Evaluate(m *Manifest, results map[string]CaseResult) *Report {
	report := &Report{Total: len(m.Cases)}

	decisionHits := 0
	totalCitations := 0
	hallucinated := 0
	coverageSum := 0.0
	appealCases := 0

	for _, gold := range m.Cases {
		outcome := CaseOutcome{Gold: gold, Pass: true}

		result, ok := results[gold.File]
		if !ok {
			outcome.Pass = false
			outcome.Reasons = append(outcome.Reasons, "no result for case")
			report.Cases = append(report.Cases, outcome)
			if gold.Adversarial {
				report.AdversarialTotal++
			}
			continue
		}
		outcome.Result = result

		if result.Err != "" {
			outcome.Pass = false
			outcome.Reasons = append(outcome.Reasons, "run failed: "+result.Err)
		}

		if string(result.Decision) == gold.ExpectedDecision {
			decisionHits++
		} else {
			outcome.Pass = false
			outcome.Reasons = append(outcome.Reasons,
				fmt.Sprintf("decision %s, expected %s", result.Decision, gold.ExpectedDecision))
		}

		if gold.MinConfidence > 0 && result.Confidence < gold.MinConfidence {
			outcome.Pass = false
			outcome.Reasons = append(outcome.Reasons,
				fmt.Sprintf("confidence %.2f below floor %.2f", result.Confidence, gold.MinConfidence))
		}

		if gold.ClaimNumber != "" && result.ClaimNumber != gold.ClaimNumber {
			outcome.Pass = false
			outcome.Reasons = append(outcome.Reasons,
				fmt.Sprintf("claim number %q, expected %q", result.ClaimNumber, gold.ClaimNumber))
		}

		if gold.Adversarial {
			report.AdversarialTotal++
			// An adversarial letter is caught when it never reaches
			// submission: escalated or correctly rejected.
			if result.Decision == model.DecisionEscalate || string(result.Decision) == gold.ExpectedDecision {
				report.AdversarialCaught++
			}
		}

		totalCitations += result.TotalCitations
		hallucinated += result.HallucinationCount
		if result.Decision == model.DecisionAppeal {
			coverageSum += result.CitationCoverage
			appealCases++
		}

		report.Cases = append(report.Cases, outcome)
	}

	for _, c := range report.Cases {
		if c.Pass {
			report.Passed++
		}
	}
	if report.Total > 0 {
		report.DecisionAccuracy = float64(decisionHits) / float64(report.Total)
	}
	if totalCitations > 0 {
		report.HallucinationRate = float64(hallucinated) / float64(totalCitations)
	}
	if appealCases > 0 {
		report.EvidenceCoverage = coverageSum / float64(appealCases)
	} else {
		// No appeals drafted means no evidence to grade.
		report.EvidenceCoverage = 1.0
	}

	sort.Slice(report.Cases, func(i, j int) bool {
		return report.Cases[i].Gold.File < report.Cases[j].Gold.File
	})
	return report
}

// CheckGates returns an error when any corpus-level quality gate fails.
func CheckGates(report *Report, maxHallucinationRate, minEvidenceCoverage float64) error {
	var failures []string

	if report.Passed < report.Total {
		failures = append(failures,
			fmt.Sprintf("%d/%d cases failed", report.Total-report.Passed, report.Total))
	}
	if report.HallucinationRate > maxHallucinationRate {
		failures = append(failures,
			fmt.Sprintf("hallucination rate %.4f exceeds %.4f", report.HallucinationRate, maxHallucinationRate))
	}
	if report.EvidenceCoverage < minEvidenceCoverage {
		failures = append(failures,
			fmt.Sprintf("evidence coverage %.4f below %.4f", report.EvidenceCoverage, minEvidenceCoverage))
	}
	if report.AdversarialTotal > 0 && report.AdversarialCaught < report.AdversarialTotal {
		failures = append(failures,
			fmt.Sprintf("%d/%d adversarial cases slipped through",
				report.AdversarialTotal-report.AdversarialCaught, report.AdversarialTotal))
	}

	if len(failures) > 0 {
		return eris.Errorf("ci: gates failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

// FormatMarkdown produces a Markdown summary of the regression report.
func FormatMarkdown(report *Report) string {
	var sb strings.Builder

	sb.WriteString("## Triage Regression Report\n\n")
	fmt.Fprintf(&sb, "- Cases: %d/%d passed\n", report.Passed, report.Total)
	fmt.Fprintf(&sb, "- Decision accuracy: %.1f%%\n", report.DecisionAccuracy*100)
	fmt.Fprintf(&sb, "- Hallucination rate: %.4f\n", report.HallucinationRate)
	fmt.Fprintf(&sb, "- Evidence coverage: %.4f\n", report.EvidenceCoverage)
	if report.AdversarialTotal > 0 {
		fmt.Fprintf(&sb, "- Adversarial caught: %d/%d\n", report.AdversarialCaught, report.AdversarialTotal)
	}

	sb.WriteString("\n| Case | Decision | Expected | Verdict |\n")
	sb.WriteString("|:-----|:---------|:---------|:--------|\n")
	for _, c := range report.Cases {
		verdict := "pass"
		if !c.Pass {
			verdict = "FAIL: " + strings.Join(c.Reasons, "; ")
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n",
			c.Gold.File, c.Result.Decision, c.Gold.ExpectedDecision, verdict)
	}
	return sb.String()
}
