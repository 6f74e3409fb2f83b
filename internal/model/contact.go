// internal/model/contact.go
package model

import "encoding/json"

type Contact struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Tags           []string `json:"tags"`
	MarketingOptIn bool     `json:"marketingOptIn"`
}

// UnmarshalJSON treats a missing marketingOptIn as opted in; only an
// explicit false opts a contact out.
func (c *Contact) UnmarshalJSON(data []byte) error {
	type plain Contact
	p := plain{MarketingOptIn: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Contact(p)
	return nil
}

// FirstName is the first word of the contact's name.
func (c Contact) FirstName() string {
	for i, r := range c.Name {
		if r == ' ' {
			return c.Name[:i]
		}
	}
	return c.Name
}

func (c Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Segment selects contacts for a campaign.
type Segment struct {
	IDs            []string `json:"ids,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	TagMatch       string   `json:"tagMatch,omitempty" validate:"omitempty,oneof=any all"`
	NewClientsOnly bool     `json:"newClientsOnly,omitempty"`
	// MarketingOptInOnly defaults to true when omitted.
	MarketingOptInOnly *bool `json:"marketingOptInOnly,omitempty"`
}

// ContactPatch carries the fields an upsert may change; nil means keep.
type ContactPatch struct {
	ID             string   `json:"id,omitempty"`
	Name           *string  `json:"name,omitempty"`
	Email          *string  `json:"email,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MarketingOptIn *bool    `json:"marketingOptIn,omitempty"`
}
