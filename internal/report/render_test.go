package report

import (
	"strings"
	"testing"

	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMarkdown = "# Campaign Simulation Report\n\n" +
	"## Expected Ranges\n\n| Metric | Min | Max |\n|---|---|---|\n| ROI % | 12.00 | 48.00 |\n\n" +
	"## Recommendation: SCALE\n\nStrong break-even.\n\n" +
	"## Audit Trail\n\n- validate\n"

func TestHTMLRendersTablesAndHooks(t *testing.T) {
	doc, err := HTML(sampleMarkdown, Meta{ScenarioID: "sc-1", Version: 2, TrendID: "trend-<x>", Posture: simulation.PostureScale, Confidence: simulation.ConfidenceHigh})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc, "<!doctype html>"))
	assert.Contains(t, doc, "<table>")
	assert.Contains(t, doc, `<h2 data-recommendation="true">Recommendation: SCALE</h2>`)
	assert.Contains(t, doc, `<h2 data-page-break-before="true">Audit Trail</h2>`)
	assert.Contains(t, doc, "sc-1 (v2)")
	assert.Contains(t, doc, "trend-&lt;x&gt;")
	assert.Contains(t, doc, "data-posture='scale'")

	again, err := HTML(sampleMarkdown, Meta{ScenarioID: "sc-1", Version: 2, TrendID: "trend-<x>", Posture: simulation.PostureScale, Confidence: simulation.ConfidenceHigh})
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestApplyPrintLayoutHooksNoopWithoutHeadings(t *testing.T) {
	in := "<h2>Summary</h2><p>x</p>"
	assert.Equal(t, in, applyPrintLayoutHooks(in))
}

func TestMetaForCopiesDecision(t *testing.T) {
	res := simulation.SimulationResult{
		Scenario: simulation.ScenarioInput{ScenarioID: "sc-9", TrendContext: simulation.TrendContext{TrendID: "t"}},
		Decision: simulation.DecisionInterpretation{RecommendedPosture: simulation.PostureAvoid},
		Summary:  simulation.Summary{Confidence: simulation.ConfidenceLow},
	}
	assert.Equal(t, Meta{ScenarioID: "sc-9", Version: 3, TrendID: "t", Posture: simulation.PostureAvoid, Confidence: simulation.ConfidenceLow}, MetaFor(res, 3))
}
