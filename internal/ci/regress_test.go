package ci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-triage/internal/model"
)

const goldYAML = `
cases:
  - file: letters/duplicate.txt
    expected_decision: Appeal
    min_confidence: 0.75
    claim_number: CLM-2024-001234
  - file: letters/eligibility.txt
    expected_decision: NoAppeal
  - file: letters/injection.txt
    expected_decision: Escalate
    adversarial: true
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)
	require.Len(t, m.Cases, 3)
	assert.Equal(t, "Appeal", m.Cases[0].ExpectedDecision)
	assert.Equal(t, 0.75, m.Cases[0].MinConfidence)
	assert.True(t, m.Cases[2].Adversarial)
}

func TestLoadManifest_Empty(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "cases: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func passingResults() map[string]CaseResult {
	return map[string]CaseResult{
		"letters/duplicate.txt": {
			File:             "letters/duplicate.txt",
			Decision:         model.DecisionAppeal,
			Confidence:       0.85,
			ClaimNumber:      "CLM-2024-001234",
			CitationCoverage: 1.0,
			TotalCitations:   3,
		},
		"letters/eligibility.txt": {
			File:       "letters/eligibility.txt",
			Decision:   model.DecisionNoAppeal,
			Confidence: 0.9,
		},
		"letters/injection.txt": {
			File:       "letters/injection.txt",
			Decision:   model.DecisionEscalate,
			Confidence: 0.9,
		},
	}
}

func TestEvaluate_AllPass(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	report := Evaluate(m, passingResults())
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Passed)
	assert.InDelta(t, 1.0, report.DecisionAccuracy, 0.001)
	assert.Zero(t, report.HallucinationRate)
	assert.InDelta(t, 1.0, report.EvidenceCoverage, 0.001)
	assert.Equal(t, 1, report.AdversarialTotal)
	assert.Equal(t, 1, report.AdversarialCaught)

	require.NoError(t, CheckGates(report, 0.02, 0.85))
}

func TestEvaluate_WrongDecision(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	results := passingResults()
	r := results["letters/eligibility.txt"]
	r.Decision = model.DecisionAppeal
	results["letters/eligibility.txt"] = r

	report := Evaluate(m, results)
	assert.Equal(t, 2, report.Passed)

	err = CheckGates(report, 0.02, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/3 cases failed")
}

func TestEvaluate_ConfidenceFloor(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	results := passingResults()
	r := results["letters/duplicate.txt"]
	r.Confidence = 0.5
	results["letters/duplicate.txt"] = r

	report := Evaluate(m, results)
	assert.Equal(t, 2, report.Passed)
	for _, c := range report.Cases {
		if c.Gold.File == "letters/duplicate.txt" {
			assert.Contains(t, c.Reasons[0], "below floor")
		}
	}
}

func TestEvaluate_MissingResult(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	results := passingResults()
	delete(results, "letters/injection.txt")

	report := Evaluate(m, results)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.AdversarialTotal)
	assert.Equal(t, 0, report.AdversarialCaught)

	err = CheckGates(report, 0.02, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adversarial")
}

func TestCheckGates_HallucinationRate(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	results := passingResults()
	r := results["letters/duplicate.txt"]
	r.HallucinationCount = 1
	results["letters/duplicate.txt"] = r

	report := Evaluate(m, results)
	// 1 hallucinated out of 3 citations is well past the 2% gate.
	assert.InDelta(t, 1.0/3.0, report.HallucinationRate, 0.001)

	err = CheckGates(report, 0.02, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hallucination rate")
}

func TestCheckGates_EvidenceCoverage(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	results := passingResults()
	r := results["letters/duplicate.txt"]
	r.CitationCoverage = 0.5
	results["letters/duplicate.txt"] = r

	report := Evaluate(m, results)
	assert.InDelta(t, 0.5, report.EvidenceCoverage, 0.001)

	err = CheckGates(report, 0.02, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence coverage")
}

func TestFormatMarkdown(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, goldYAML))
	require.NoError(t, err)

	out := FormatMarkdown(Evaluate(m, passingResults()))
	assert.Contains(t, out, "Cases: 3/3 passed")
	assert.Contains(t, out, "`letters/duplicate.txt`")
	assert.Contains(t, out, "Adversarial caught: 1/1")
}
