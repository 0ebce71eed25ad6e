// Package report turns the markdown simulation report into HTML and PDF.
package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Meta is the header block printed above the report body.
type Meta struct {
	ScenarioID string
	Version    int
	TrendID    string
	Posture    simulation.Posture
	Confidence simulation.ConfidenceLevel
}

func MetaFor(res simulation.SimulationResult, version int) Meta {
	return Meta{
		ScenarioID: res.Scenario.ScenarioID,
		Version:    version,
		TrendID:    res.Scenario.TrendContext.TrendID,
		Posture:    res.Decision.RecommendedPosture,
		Confidence: res.Summary.Confidence,
	}
}

const reportCSS = `
body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1c1917;background:#fff;margin:0;padding:0.6rem;}
.wrap{max-width:960px;margin:0 auto;}
.meta{color:#44403c;font-size:0.85rem;margin-bottom:0.5rem;}
.meta strong{color:#1c1917;}
.badge{display:inline-block;margin-right:0.4rem;padding:0.1rem 0.5rem;border-radius:0.6rem;font-size:0.75rem;background:#e7e5e4;}
.badge[data-posture="scale"]{background:#dcfce7;color:#14532d;}
.badge[data-posture="test_small"]{background:#e0f2fe;color:#0c4a6e;}
.badge[data-posture="monitor"]{background:#fef3c7;color:#78350f;}
.badge[data-posture="avoid"]{background:#fee2e2;color:#7f1d1d;}
table{width:100%;border-collapse:collapse;font-size:0.8rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;}
h2[data-recommendation="true"]{border-left:4px solid #92400e;padding-left:0.4rem;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
html,body,*{-webkit-print-color-adjust:exact;print-color-adjust:exact;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;} .wrap{max-width:none;}}
`

var (
	reAuditTrail     = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Audit Trail\s*</h2>`)
	reRecommendation = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Recommendation:[^<]*)\s*</h2>`)
)

// HTML renders a standalone document; output depends only on its inputs.
func HTML(markdown string, meta Meta) (string, error) {
	var body strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Campaign Simulation Report</title>" +
		"<style>" + reportCSS + "</style></head><body><div class='wrap'>" +
		"<div class='meta'>" + metaHTML(meta) + "</div>" +
		"<div class='badges'>" + badgeHTML(meta) + "</div>" +
		"<div class='report'>" + applyPrintLayoutHooks(body.String()) + "</div>" +
		"</div></body></html>", nil
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := reAuditTrail.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">Audit Trail</h2>`)
	return reRecommendation.ReplaceAllString(out, `<h2$1 data-recommendation="true">$2</h2>`)
}

func metaHTML(m Meta) string {
	var out strings.Builder
	if m.ScenarioID != "" {
		ref := m.ScenarioID
		if m.Version > 0 {
			ref = fmt.Sprintf("%s (v%d)", ref, m.Version)
		}
		out.WriteString("<div><strong>Scenario:</strong> " + html.EscapeString(ref) + "</div>")
	}
	if m.TrendID != "" {
		out.WriteString("<div><strong>Trend:</strong> " + html.EscapeString(m.TrendID) + "</div>")
	}
	return out.String()
}

func badgeHTML(m Meta) string {
	var out strings.Builder
	if m.Posture != "" {
		out.WriteString("<span class='badge' data-posture='" + html.EscapeString(string(m.Posture)) + "'>" +
			html.EscapeString(strings.ToUpper(string(m.Posture))) + "</span>")
	}
	if m.Confidence != "" {
		out.WriteString("<span class='badge'>Confidence: " + html.EscapeString(string(m.Confidence)) + "</span>")
	}
	return out.String()
}

// PDFRenderer prints the HTML report with headless Chromium.
type PDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{chromePath: detectChromePath(), timeout: 30 * time.Second}
}

func (r *PDFRenderer) Render(ctx context.Context, markdown string, meta Meta) ([]byte, error) {
	doc, err := HTML(markdown, meta)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

func detectChromePath() string {
	for _, p := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
