// Package report renders run report summaries into the HTML mail body sent
// to requesters.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/internal/domain"
)

// ErrInvalidResult is returned for a summary whose result is not PASSED or FAILED.
var ErrInvalidResult = domain.ErrInvalidResult

const notAvailable = "N/A"

const (
	colorPassed = "#28a745"
	colorFailed = "#dc3545"
)

var page = template.Must(template.New("report").Parse(`<html>
  <body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: {{.Color}};">{{.Indicator}} - Sprint {{.Sprint}}</h2>
    <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
      <h3>Run summary</h3>
      <ul>
        <li><strong>Coverage:</strong> {{.Coverage}}</li>
        <li><strong>Unit tests:</strong> {{.Unit}}</li>
        <li><strong>E2E tests:</strong> {{.E2E}}</li>
        <li><strong>Quality score:</strong> {{.Lighthouse}}</li>
      </ul>
{{- if .Notes}}
      <p class="notes"><strong>Notes:</strong> {{.Notes}}</p>
{{- end}}
    </div>
{{- if .Artifacts}}
    <div class="artifacts" style="background-color: #e9ecef; padding: 15px; border-radius: 5px; margin: 20px 0;">
      <h3>Artifacts</h3>
      <ul>
{{- range .Artifacts}}
        <li><a href="{{.URL}}" style="color: #007bff;">{{.Label}}</a></li>
{{- end}}
      </ul>
{{- if .LinkTTL}}
      <p style="font-size: 0.9em; color: #6c757d;"><em>Links expire in {{.LinkTTL}}</em></p>
{{- end}}
    </div>
{{- end}}
    <hr style="margin: 30px 0;">
    <p style="color: #6c757d; font-size: 0.9em;">Generated by the spec-relay delivery pipeline</p>
  </body>
</html>
`))

type view struct {
	Color      string
	Indicator  string
	Sprint     string
	Coverage   string
	Unit       string
	E2E        string
	Lighthouse string
	Notes      string
	Artifacts  []artifactLink
	LinkTTL    string
}

type artifactLink struct {
	Label string
	URL   template.URL
}

// Render produces the HTML document for summary. Output depends only on
// the summary.
func Render(summary domain.ReportSummary) (string, error) {
	return RenderWithLinkTTL(summary, 0)
}

// RenderWithLinkTTL is Render with an expiry note under the artifact links.
// A non-positive ttl leaves the note out.
func RenderWithLinkTTL(summary domain.ReportSummary, linkTTL time.Duration) (string, error) {
	if err := summary.Validate(); err != nil {
		return "", err
	}
	v := view{
		Color:      colorFailed,
		Indicator:  Indicator(summary.Result),
		Sprint:     sprintLabel(summary.Sprint),
		Coverage:   FormatCoverage(summary.Coverage),
		Unit:       passLabel(summary.UnitPass),
		E2E:        passLabel(summary.E2EPass),
		Lighthouse: notAvailable,
		Notes:      strings.TrimSpace(summary.Notes),
		LinkTTL:    FormatTTL(linkTTL),
	}
	if summary.Result == domain.RunPassed {
		v.Color = colorPassed
	}
	if summary.Lighthouse != nil {
		v.Lighthouse = fmt.Sprintf("%g", *summary.Lighthouse)
	}
	for _, a := range summary.Artifacts {
		v.Artifacts = append(v.Artifacts, artifactLink{
			Label: strings.ToUpper(a.Kind),
			URL:   safeURL(a.SignedURL),
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// Subject builds the mail subject line for summary.
func Subject(summary domain.ReportSummary) string {
	return fmt.Sprintf("Sprint %s - %s", sprintLabel(summary.Sprint), summary.Result)
}

func Indicator(result domain.RunResult) string {
	if result == domain.RunPassed {
		return "✅ PASSED"
	}
	return "❌ FAILED"
}

// FormatCoverage renders a [0,1] ratio as a one-decimal percentage.
func FormatCoverage(coverage *float64) string {
	if coverage == nil {
		return notAvailable
	}
	return fmt.Sprintf("%.1f%%", *coverage*100)
}

// FormatTTL renders whole hours as "24h" and anything else as a Go
// duration. Non-positive values render as "".
func FormatTTL(ttl time.Duration) string {
	switch {
	case ttl <= 0:
		return ""
	case ttl%time.Hour == 0:
		return fmt.Sprintf("%dh", ttl/time.Hour)
	default:
		return ttl.String()
	}
}

func passLabel(pass *bool) string {
	switch {
	case pass == nil:
		return notAvailable
	case *pass:
		return "✅ Passed"
	default:
		return "❌ Failed"
	}
}

func sprintLabel(sprint string) string {
	sprint = strings.TrimSpace(sprint)
	if sprint == "" {
		return notAvailable
	}
	return sprint
}

// safeURL lets presigned http(s) links through the template unescaped;
// anything else is neutralised.
func safeURL(raw string) template.URL {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return template.URL(raw)
	}
	return template.URL("#")
}
