// internal/service/merge_service.go
package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/unclebandit/salon-messaging/internal/model"
)

// MergeFields maps placeholder names to their values.
type MergeFields map[string]string

var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// lookup tries the exact token, then its lower-case form, then any key
// equal under case folding (first in sorted order).
func (f MergeFields) lookup(token string) string {
	if v, ok := f[token]; ok {
		return v
	}
	if v, ok := f[strings.ToLower(token)]; ok {
		return v
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, token) {
			return f[k]
		}
	}
	return ""
}

// Resolve replaces every {{token}} in template. Unknown tokens become "".
func Resolve(template string, fields MergeFields) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(m string) string {
		return fields.lookup(m[2 : len(m)-2])
	})
}

func ResolveAll(values []string, fields MergeFields) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Resolve(v, fields)
	}
	return out
}

// ResolveOptions returns a copy of opts with every text field resolved.
// Recipients, tags and metadata are left as they are.
func ResolveOptions(opts model.MessageOptions, fields MergeFields) model.MessageOptions {
	out := opts.Clone()
	out.Subject = Resolve(out.Subject, fields)
	out.Title = Resolve(out.Title, fields)
	out.Body = ResolveAll(out.Body, fields)
	out.PreviewText = Resolve(out.PreviewText, fields)
	out.Highlight = Resolve(out.Highlight, fields)
	if out.CTA != nil {
		out.CTA.Label = Resolve(out.CTA.Label, fields)
		out.CTA.URL = Resolve(out.CTA.URL, fields)
	}
	return out
}

// BuildMergeFields exposes a contact as name, firstName, email and phone.
// Entries in extra override those.
func BuildMergeFields(c model.Contact, extra map[string]string) MergeFields {
	f := MergeFields{
		"name":      c.Name,
		"firstName": c.FirstName(),
		"email":     c.Email,
		"phone":     c.Phone,
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}
