// Package render turns a finished premortem report into a print-quality PDF
// via headless Chromium.
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"premortem/internal/premortem"
)

type ChromiumPDFRenderer struct {
	chromePath string
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath()}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, report *premortem.Report) ([]byte, error) {
	htmlDoc, err := buildHTML(report)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
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
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;padding-right:8px;">` +
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
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func buildHTML(report *premortem.Report) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(premortem.BuildMarkdown(report)), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Premortem Report</title>" +
		"<style>" + reportCSS + "</style></head><body>" +
		"<div class='pdf-wrap'><section class='report-viewer'><div class='report-header'>" +
		"<div class='report-meta'>" + buildMetaHTML(report) + "</div>" +
		"<div class='report-badges'>" + buildBadgeHTML(report) + "</div>" +
		"</div><div class='report-html'>" + content.String() + "</div></section></div>" +
		"</body></html>", nil
}

const reportCSS = `
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{background:#fff;padding:0.6rem;font-family:Georgia,serif;color:#1c1917;line-height:1.5;}
.pdf-wrap{max-width:1000px;margin:0 auto;border-left:3px solid #7f1d1d;border-right:3px solid #7f1d1d;padding:0 0.65rem;}
.report-header{margin-bottom:1rem;}
.report-meta{color:#44403c;font-size:0.85rem;}
.report-meta strong{color:#1c1917;}
.report-badges{margin-top:0.4rem;}
.report-badge{display:inline-block;background:#fee2e2;color:#7f1d1d;border:1px solid #fca5a5;border-radius:4px;padding:0.1rem 0.5rem;margin-right:0.4rem;font-size:0.8rem;font-weight:700;}
.report-html a{color:#1d4ed8;text-decoration:underline;}
.report-html table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;}
.report-html th,.report-html td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.report-html thead th{background:#f1f5f9;font-weight:700;}
.report-html blockquote{border-left:3px solid #a8a29e;margin:0.5rem 0;padding:0.25rem 0.75rem;color:#44403c;font-style:italic;}
h2{break-after:avoid;page-break-after:avoid;}
@media print{ @page{size:auto;margin:12mm;} body{padding:0;} .pdf-wrap{max-width:none;} }
`

func buildMetaHTML(report *premortem.Report) string {
	var out strings.Builder
	out.WriteString("<div><strong>Report:</strong> " + html.EscapeString(report.ID) + "</div>")
	out.WriteString(fmt.Sprintf("<div><strong>Version:</strong> %d</div>", report.Version))
	out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(report.UpdatedAt.Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	return out.String()
}

func buildBadgeHTML(report *premortem.Report) string {
	var out strings.Builder
	if report.RiskScore.Overall != "" {
		out.WriteString("<span class='report-badge'>Overall Risk: " + html.EscapeString(string(report.RiskScore.Overall)) + "</span>")
	}
	if report.RiskScore.Confidence > 0 {
		out.WriteString(fmt.Sprintf("<span class='report-badge'>Confidence: %d%%</span>", report.RiskScore.Confidence))
	}
	if report.Status != premortem.StatusComplete {
		out.WriteString("<span class='report-badge'>" + html.EscapeString(strings.ToUpper(string(report.Status))) + "</span>")
	}
	return out.String()
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
