// internal/repository/contact_repository.go
package repository

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/cache"
	"github.com/unclebandit/salon-messaging/internal/db"
	"github.com/unclebandit/salon-messaging/internal/model"
)

// ContactsKey is the Store key of the contact list.
const ContactsKey = "contacts"

const NewClientTag = "new-client"

// ContactRepositoryInterface defines methods used by service
type ContactRepositoryInterface interface {
	List(ctx context.Context) ([]model.Contact, error)
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	Upsert(ctx context.Context, patch model.ContactPatch) (model.Contact, error)
	ResolveSegment(ctx context.Context, seg model.Segment, req SegmentRequirements) ([]model.Contact, error)
	Replace(ctx context.Context, contacts []model.Contact) error
}

// SegmentRequirements drops contacts that cannot receive the medium.
type SegmentRequirements struct {
	Email bool
	Phone bool
}

// ContactRepository keeps contacts as one document in the Store.
type ContactRepository struct {
	Store db.Store
	Cache *cache.Memo[[]model.Contact]

	mu sync.Mutex
}

func (r *ContactRepository) read(ctx context.Context) ([]model.Contact, error) {
	return db.Read(ctx, r.Store, ContactsKey, []model.Contact{})
}

// List returns every contact, served from the cache when warm. The refill
// runs under mu so a list read before a write cannot be cached after it.
func (r *ContactRepository) List(ctx context.Context) ([]model.Contact, error) {
	if r.Cache == nil {
		return r.read(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Cache.Get(ctx, ContactsKey, r.read)
}

// FindByID returns nil when no contact has the id.
func (r *ContactRepository) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	if id == "" {
		return nil, nil
	}
	contacts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if contacts[i].ID == id {
			c := contacts[i]
			return &c, nil
		}
	}
	return nil, nil
}

// Upsert matches an existing contact by id, then email, then phone digits,
// and creates one when nothing matches. Tags are merged, not replaced.
func (r *ContactRepository) Upsert(ctx context.Context, patch model.ContactPatch) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contacts, err := r.read(ctx)
	if err != nil {
		return model.Contact{}, err
	}

	idx := matchContact(contacts, patch)
	if idx < 0 {
		id := patch.ID
		if id == "" {
			id = "contact_" + uuid.NewString()
		}
		contacts = append(contacts, model.Contact{ID: id, Tags: []string{}, MarketingOptIn: true})
		idx = len(contacts) - 1
	}

	c := &contacts[idx]
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.MarketingOptIn != nil {
		c.MarketingOptIn = *patch.MarketingOptIn
	}
	c.Tags = mergeTags(c.Tags, patch.Tags)

	if err := db.Write(ctx, r.Store, ContactsKey, contacts); err != nil {
		return model.Contact{}, err
	}
	r.invalidate(ctx)
	log.Debug().Str("contact_id", c.ID).Msg("contact upserted")
	return *c, nil
}

// Replace overwrites the whole contact list. Contacts without an id get one.
func (r *ContactRepository) Replace(ctx context.Context, contacts []model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contacts = append([]model.Contact{}, contacts...)
	for i := range contacts {
		if contacts[i].ID == "" {
			contacts[i].ID = "contact_" + uuid.NewString()
		}
	}
	if err := db.Write(ctx, r.Store, ContactsKey, contacts); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *ContactRepository) invalidate(ctx context.Context) {
	if r.Cache != nil {
		r.Cache.Invalidate(ctx, ContactsKey)
	}
}

// ResolveSegment returns the contacts matching seg, in stored order.
func (r *ContactRepository) ResolveSegment(ctx context.Context, seg model.Segment, req SegmentRequirements) ([]model.Contact, error) {
	contacts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Contact{}
	for _, c := range contacts {
		if MatchesSegment(c, seg, req) {
			out = append(out, c)
		}
	}
	return out, nil
}

func MatchesSegment(c model.Contact, seg model.Segment, req SegmentRequirements) bool {
	if req.Email && c.Email == "" {
		return false
	}
	if req.Phone && c.Phone == "" {
		return false
	}
	if len(seg.IDs) > 0 && !contains(seg.IDs, c.ID) {
		return false
	}
	optInOnly := seg.MarketingOptInOnly == nil || *seg.MarketingOptInOnly
	if optInOnly && !c.MarketingOptIn {
		return false
	}
	if seg.NewClientsOnly && !c.HasTag(NewClientTag) {
		return false
	}
	if len(seg.Tags) == 0 {
		return true
	}
	if seg.TagMatch == "all" {
		for _, t := range seg.Tags {
			if !c.HasTag(t) {
				return false
			}
		}
		return true
	}
	for _, t := range seg.Tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

func matchContact(contacts []model.Contact, patch model.ContactPatch) int {
	if patch.ID != "" {
		for i := range contacts {
			if contacts[i].ID == patch.ID {
				return i
			}
		}
	}
	if patch.Email != nil {
		if email := normalizeEmail(*patch.Email); email != "" {
			for i := range contacts {
				if normalizeEmail(contacts[i].Email) == email {
					return i
				}
			}
		}
	}
	if patch.Phone != nil {
		if phone := normalizePhone(*patch.Phone); phone != "" {
			for i := range contacts {
				if normalizePhone(contacts[i].Phone) == phone {
					return i
				}
			}
		}
	}
	return -1
}

func mergeTags(existing, add []string) []string {
	out := append([]string{}, existing...)
	for _, t := range add {
		if t != "" && !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
