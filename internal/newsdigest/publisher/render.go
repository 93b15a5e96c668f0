package publisher

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
	"github.com/RobinCoderZhao/newsdigest/pkg/notify"
)

// DefaultSubjectPrefix opens every digest subject line.
const DefaultSubjectPrefix = "Business & Tech Digest"

// Subject renders "<prefix> — <generated_at> — N stories".
func Subject(prefix string, d pipeline.Digest) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s — %s — %d stories", prefix, d.GeneratedAt.Format(enrich.PublishedLayout), d.Total)
}

// Render builds the message for a digest: Markdown body, HTML body and a
// small structured summary for machine receivers.
func Render(prefix string, d pipeline.Digest) (notify.Message, error) {
	htmlBody, err := RenderHTML(prefix, d)
	if err != nil {
		return notify.Message{}, err
	}
	counts := make(map[string]any, len(d.Groups.Groups))
	for _, g := range d.Groups.Groups {
		counts[g.Tag] = len(g.Items)
	}
	return notify.Message{
		Title:    Subject(prefix, d),
		Body:     RenderMarkdown(prefix, d),
		HTMLBody: htmlBody,
		Format:   "markdown",
		Data: map[string]any{
			"run_id":       d.RunID,
			"generated_at": d.GeneratedAt.Format(enrich.PublishedLayout),
			"timezone":     d.TimeZone,
			"total":        d.Total,
			"groups":       counts,
		},
	}, nil
}

// RenderMarkdown formats the digest grouped by tag.
func RenderMarkdown(prefix string, d pipeline.Digest) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", prefix)
	fmt.Fprintf(&sb, "Generated %s · %d stories\n\n", d.GeneratedAt.Format(enrich.PublishedLayout), d.Total)

	for _, g := range d.Groups.Groups {
		fmt.Fprintf(&sb, "## %s (%d)\n\n", g.Tag, len(g.Items))
		for i, it := range g.Items {
			if it.URL != "" {
				fmt.Fprintf(&sb, "%d. **[%s](%s)**\n", i+1, it.Title, it.URL)
			} else {
				fmt.Fprintf(&sb, "%d. **%s**\n", i+1, it.Title)
			}
			if it.Enrichment.Summary != "" && it.Enrichment.Summary != it.Title {
				fmt.Fprintf(&sb, "   %s\n", it.Enrichment.Summary)
			}
			fmt.Fprintf(&sb, "   %s\n", metaLine(it))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func metaLine(it news.DigestItem) string {
	parts := make([]string, 0, 4)
	if it.Source != "" {
		parts = append(parts, it.Source)
	}
	if it.Published != "" {
		parts = append(parts, it.Published)
	}
	parts = append(parts, string(it.Enrichment.Sentiment))
	parts = append(parts, fmt.Sprintf("score %.2f", it.Enrichment.Score))
	return strings.Join(parts, " · ")
}

type htmlView struct {
	Title       string
	GeneratedAt string
	TimeZone    string
	Total       int
	Groups      []news.Group
}

// RenderHTML renders the email body.
func RenderHTML(prefix string, d pipeline.Digest) (string, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, htmlView{
		Title:       prefix,
		GeneratedAt: d.GeneratedAt.Format(enrich.PublishedLayout),
		TimeZone:    d.TimeZone,
		Total:       d.Total,
		Groups:      d.Groups.Groups,
	})
	if err != nil {
		return "", fmt.Errorf("render html digest: %w", err)
	}
	return buf.String(), nil
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"score":          func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"sentimentColor": sentimentColor,
	"differs":        func(a, b string) bool { return a != "" && a != b },
}).Parse(digestHTML))

func sentimentColor(s news.Sentiment) string {
	switch s {
	case news.Positive:
		return "#22c55e"
	case news.Negative:
		return "#ef4444"
	default:
		return "#94a3b8"
	}
}

const digestHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#0f0f23;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#0f0f23;">
<tr><td align="center" style="padding:20px 10px;">
<table role="presentation" width="640" cellpadding="0" cellspacing="0" style="max-width:640px;width:100%;">
<tr><td style="background:linear-gradient(135deg,#6366f1 0%,#8b5cf6 100%);border-radius:16px 16px 0 0;padding:32px 40px;text-align:center;">
  <h1 style="margin:0;font-size:26px;font-weight:800;color:#ffffff;">{{.Title}}</h1>
  <p style="margin:8px 0 0;font-size:14px;color:rgba(255,255,255,0.85);">{{.GeneratedAt}} · {{.Total}} stories</p>
</td></tr>
<tr><td style="background-color:#1a1a2e;padding:24px 40px;">
{{- range .Groups}}
  <h2 style="margin:24px 0 12px;font-size:18px;color:#c4b5fd;">{{.Tag}} <span style="color:#64748b;font-weight:400;">({{len .Items}})</span></h2>
  {{- range .Items}}
  <div style="margin:0 0 16px;padding:14px 16px;background-color:#16213e;border-radius:10px;">
    {{- if .URL}}
    <a href="{{.URL}}" style="font-size:15px;font-weight:700;color:#e2e8f0;text-decoration:none;">{{.Title}}</a>
    {{- else}}
    <span style="font-size:15px;font-weight:700;color:#e2e8f0;">{{.Title}}</span>
    {{- end}}
    {{- if differs .Enrichment.Summary .Title}}
    <p style="margin:6px 0 0;font-size:14px;line-height:1.5;color:#cbd5e1;">{{.Enrichment.Summary}}</p>
    {{- end}}
    <p style="margin:8px 0 0;font-size:12px;color:#94a3b8;">
      {{- if .Source}}{{.Source}} · {{end}}{{if .Published}}{{.Published}} · {{end -}}
      <span style="color:{{sentimentColor .Enrichment.Sentiment}};">{{.Enrichment.Sentiment}}</span> · score {{score .Enrichment.Score}}
    </p>
  </div>
  {{- end}}
{{- end}}
</td></tr>
<tr><td style="background-color:#1a1a2e;border-radius:0 0 16px 16px;padding:16px 40px;text-align:center;font-size:12px;color:#64748b;">
  Times shown in {{.TimeZone}}.
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`
