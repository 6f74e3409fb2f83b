// internal/model/message_options.go
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

type Medium string

const (
	MediumEmail Medium = "email"
	MediumSMS   Medium = "sms"
)

type CallToAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// StringList decodes from either a single JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// MessageOptions is the resolved payload handed to a delivery provider.
// Fields the providers understand are typed; anything else a caller sends is
// kept in Extra and written back unchanged.
type MessageOptions struct {
	Medium      Medium            `json:"medium,omitempty" validate:"omitempty,oneof=email sms"`
	To          StringList        `json:"to" validate:"min=1,dive,required"`
	From        string            `json:"from,omitempty"`
	FromName    string            `json:"fromName,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Title       string            `json:"title,omitempty"`
	Body        StringList        `json:"body,omitempty"`
	CTA         *CallToAction     `json:"cta,omitempty"`
	PreviewText string            `json:"previewText,omitempty"`
	Highlight   string            `json:"highlight,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Campaign    string            `json:"campaign,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SendAt      *time.Time        `json:"sendAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownOptionKeys = map[string]struct{}{
	"medium": {}, "to": {}, "from": {}, "fromName": {}, "subject": {}, "title": {},
	"body": {}, "cta": {}, "previewText": {}, "highlight": {}, "tags": {},
	"campaign": {}, "metadata": {}, "sendAt": {},
}

// messageOptionsFields drops the custom (un)marshalers.
type messageOptionsFields MessageOptions

func (o *MessageOptions) UnmarshalJSON(b []byte) error {
	var fields messageOptionsFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k := range raw {
		if _, known := knownOptionKeys[k]; known {
			delete(raw, k)
		}
	}
	*o = MessageOptions(fields)
	o.Extra = nil
	if len(raw) > 0 {
		o.Extra = raw
	}
	return nil
}

func (o MessageOptions) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(messageOptionsFields(o))
	if err != nil || len(o.Extra) == 0 {
		return b, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range o.Extra {
		if _, known := knownOptionKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// MediumOrDefault treats an unset medium as email.
func (o MessageOptions) MediumOrDefault() Medium {
	if o.Medium == "" {
		return MediumEmail
	}
	return o.Medium
}

// Clone returns a deep copy so templates can be resolved per recipient.
func (o MessageOptions) Clone() MessageOptions {
	c := o
	c.To = append(StringList(nil), o.To...)
	c.Body = append(StringList(nil), o.Body...)
	c.Tags = append([]string(nil), o.Tags...)
	if o.CTA != nil {
		cta := *o.CTA
		c.CTA = &cta
	}
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	if o.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	if o.SendAt != nil {
		t := *o.SendAt
		c.SendAt = &t
	}
	return c
}
