package provider

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/unclebandit/salon-messaging/internal/model"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body style="margin:0;padding:0;background:{{.Brand.BackgroundColor}};color:{{.Brand.TextColor}};font-family:'Helvetica Neue',Arial,sans-serif;">
    <span style="display:none;font-size:1px;line-height:1px;max-height:0;max-width:0;opacity:0;overflow:hidden;">{{.Preview}}</span>
    <table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="padding:24px 0;">
      <tr>
        <td align="center">
          <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#fff;border-radius:18px;padding:48px 56px;">
            <tr><td align="center" style="padding-bottom:28px;"><img src="{{.Brand.LogoURL}}" alt="{{.Brand.Name}}" style="max-width:180px;height:auto;" /></td></tr>
            <tr><td style="font-size:24px;font-weight:700;padding-bottom:18px;text-align:center;">{{.Title}}</td></tr>
            {{- if .Highlight}}
            <tr><td style="padding:18px 24px;border-radius:12px;font-size:15px;text-align:center;">{{.Highlight}}</td></tr>
            {{- end}}
            <tr>
              <td style="font-size:16px;line-height:1.7;padding-top:24px;">
                {{- range .Paragraphs}}
                <p style="margin:0 0 16px 0;">{{range $i, $line := .}}{{if $i}}<br />{{end}}{{$line}}{{end}}</p>
                {{- end}}
              </td>
            </tr>
            {{- with .CTA}}
            <tr><td align="center" style="padding:32px 0;"><a href="{{.URL}}" style="background:{{$.Brand.AccentColor}};color:#fff;text-decoration:none;padding:14px 38px;border-radius:999px;font-weight:600;display:inline-block;">{{.Label}}</a></td></tr>
            {{- end}}
            <tr>
              <td align="center" style="padding:24px 0 0 0;">
                {{- range .Brand.Social}}
                <a href="{{.URL}}" style="display:inline-block;margin:0 6px;"><img src="{{.IconURL}}" alt="{{.Name}}" style="height:28px;width:28px;" /></a>
                {{- end}}
              </td>
            </tr>
            <tr>
              <td style="padding-top:16px;font-size:13px;color:#6f6f6f;text-align:center;">{{.Brand.FooterText}}<br />
              Need help? <a href="mailto:{{.Brand.SupportEmail}}">{{.Brand.SupportEmail}}</a></td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>`))

type emailView struct {
	Brand      Brand
	Title      string
	Preview    string
	Highlight  string
	Paragraphs [][]string
	CTA        *model.CallToAction
}

// usableCTA drops a call-to-action missing either half.
func usableCTA(cta *model.CallToAction) *model.CallToAction {
	if cta == nil || cta.Label == "" || cta.URL == "" {
		return nil
	}
	return cta
}

func paragraphs(body []string) [][]string {
	out := make([][]string, 0, len(body))
	for _, block := range body {
		lines := strings.Split(block, "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		out = append(out, lines)
	}
	return out
}

// RenderHTML builds the branded HTML body and returns it with the preview
// text that was used.
func RenderHTML(brand Brand, opts model.MessageOptions) (string, string, error) {
	title := opts.Title
	if title == "" {
		title = brand.Name
	}
	paras := paragraphs(opts.Body)
	preview := opts.PreviewText
	if preview == "" && len(paras) > 0 {
		preview = strings.Join(paras[0], " ")
	}
	view := emailView{
		Brand:      brand,
		Title:      title,
		Preview:    preview,
		Highlight:  opts.Highlight,
		Paragraphs: paras,
		CTA:        usableCTA(opts.CTA),
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", "", err
	}
	return buf.String(), preview, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func stripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// RenderText builds the plain-text alternative.
func RenderText(brand Brand, opts model.MessageOptions) string {
	title := opts.Title
	if title == "" {
		title = brand.Name
	}
	lines := []string{title, ""}
	for _, p := range opts.Body {
		lines = append(lines, stripHTML(p))
	}
	if cta := usableCTA(opts.CTA); cta != nil {
		lines = append(lines, "", cta.Label+": "+cta.URL)
	}
	lines = append(lines, "", brand.FooterText)
	return strings.Join(lines, "\n")
}

// SMSBody joins body paragraphs with blank lines, falling back to the
// subject when there is no body.
func SMSBody(opts model.MessageOptions) string {
	parts := make([]string, 0, len(opts.Body)+1)
	for _, p := range opts.Body {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 && opts.Subject != "" {
		parts = append(parts, opts.Subject)
	}
	if cta := usableCTA(opts.CTA); cta != nil {
		parts = append(parts, cta.Label+": "+cta.URL)
	}
	return strings.Join(parts, "\n\n")
}
