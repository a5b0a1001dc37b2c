// Package normalize maps loosely typed stored documents onto canonical
// records. Every function here is pure: the fallback time is supplied by the
// caller so the same document and time always yield the same record.
package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
)

// Diagnostic describes a field that was missing or could not be coerced.
type Diagnostic struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s/%s %s: %s", d.Entity, d.ID, d.Field, d.Reason)
}

type reader struct {
	entity string
	doc    repository.Document
	table  Table
	diags  []Diagnostic
}

func newReader(entity string, table Table, doc repository.Document) *reader {
	return &reader{entity: entity, doc: doc, table: table}
}

func (r *reader) note(field, reason string) {
	r.diags = append(r.diags, Diagnostic{Entity: r.entity, ID: r.doc.ID, Field: field, Reason: reason})
}

func (r *reader) lookup(field string) (interface{}, bool) {
	v, _, ok := r.table.Lookup(r.doc.Data, field)
	return v, ok
}

func (r *reader) str(field string, required bool) string {
	v, ok := r.lookup(field)
	if !ok {
		if required {
			r.note(field, "missing")
		}
		return ""
	}
	s, ok := asString(v)
	if !ok {
		r.note(field, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	return s
}

// present returns the stored spellings of field that hold a non-nil value,
// in priority order.
func (r *reader) present(field string) []string {
	var names []string
	for _, name := range r.table.names(field) {
		if v, ok := r.doc.Data[name]; ok && v != nil {
			names = append(names, name)
		}
	}
	return names
}

// number returns the first spelling of field that coerces to a number.
// Spellings that do not coerce are skipped with a diagnostic.
func (r *reader) number(field string) (float64, bool) {
	for _, name := range r.present(field) {
		v := r.doc.Data[name]
		if n, ok := asNumber(v); ok {
			return n, true
		}
		r.note(field, fmt.Sprintf("%s is not a number: %v", name, v))
	}
	return 0, false
}

func (r *reader) count(field string) int {
	n, ok := r.number(field)
	if !ok {
		return 0
	}
	if n < 0 {
		r.note(field, "negative value clamped to 0")
		return 0
	}
	if n > math.MaxInt32 {
		r.note(field, fmt.Sprintf("value %v clamped to %d", n, math.MaxInt32))
		return math.MaxInt32
	}
	return int(n)
}

func (r *reader) boolean(field string) bool {
	v, ok := r.lookup(field)
	if !ok {
		return false
	}
	b, ok := asBool(v)
	if !ok {
		r.note(field, fmt.Sprintf("not a boolean: %v", v))
	}
	return b
}

// time returns the first spelling of field that parses as a time.
func (r *reader) time(field string) (time.Time, bool) {
	for _, name := range r.present(field) {
		v := r.doc.Data[name]
		if t, ok := asTime(v); ok {
			return t, true
		}
		r.note(field, fmt.Sprintf("%s is an unparseable time: %v", name, v))
	}
	return time.Time{}, false
}

// stamp returns the record time or falls back to now.
func (r *reader) stamp(field string, now time.Time) (time.Time, bool) {
	if t, ok := r.time(field); ok {
		return t, false
	}
	r.note(field, "missing, using snapshot read time")
	return now.UTC(), true
}

func Product(doc repository.Document, now time.Time) (entity.Product, []Diagnostic) {
	r := newReader("product", ProductAliases, doc)
	p := entity.Product{
		ID:          doc.ID,
		Name:        r.str("name", true),
		Description: r.str("description", false),
		ImageURL:    r.str("imageUrl", false),
		Category:    r.str("category", false),
		PitchCount:  r.count("pitchCount"),
	}

	price, hasPrice := r.number("price")
	p.PriceType = r.priceType(hasPrice && price > 0)
	if p.PriceType == entity.PriceFixed {
		value := price
		if !hasPrice || price < 0 {
			r.note("price", "fixed price without a usable amount, using 0")
			value = 0
		}
		p.Price = &value
	}

	if _, ok := r.lookup("stockLevel"); ok {
		p.StockLevel = r.count("stockLevel")
	} else {
		switch strings.ToLower(r.str("stockStatus", false)) {
		case "in_stock", "instock", "available":
			p.StockLevel = 1
		case "out_of_stock", "outofstock", "sold_out", "":
			p.StockLevel = 0
		default:
			r.note("stockStatus", "unknown stock status")
		}
	}

	p.CreatedAt, p.TimestampInferred = r.stamp("createdAt", now)
	p.UpdatedAt, _ = r.time("updatedAt")
	return p, r.diags
}

func (r *reader) priceType(hasPrice bool) entity.PriceType {
	raw := strings.ToLower(r.str("priceType", false))
	switch raw {
	case "fixed":
		return entity.PriceFixed
	case "request", "dm", "on_request", "on request", "price_on_request":
		return entity.PriceRequest
	case "":
		if hasPrice {
			return entity.PriceFixed
		}
		return entity.PriceRequest
	}
	r.note("priceType", "unknown price type "+raw)
	if hasPrice {
		return entity.PriceFixed
	}
	return entity.PriceRequest
}

func Pitch(doc repository.Document, now time.Time) (entity.Pitch, []Diagnostic) {
	r := newReader("pitch", PitchAliases, doc)
	p := entity.Pitch{
		ID:           doc.ID,
		ProductID:    r.str("productId", true),
		ProductName:  r.str("productName", false),
		AuthorUserID: r.str("authorUserId", false),
		Name:         r.str("name", false),
		Email:        r.str("email", false),
		Phone:        r.str("phone", false),
		Message:      r.str("message", false),
	}
	if price, ok := r.number("proposedPrice"); ok && price > 0 {
		p.ProposedPrice = &price
	}

	switch status := strings.ToLower(r.str("status", false)); status {
	case "pending", "new", "":
		p.Status = entity.PitchPending
	case "approved", "accepted":
		p.Status = entity.PitchApproved
	case "rejected", "declined":
		p.Status = entity.PitchRejected
	default:
		r.note("status", "unknown status "+status+", treated as pending")
		p.Status = entity.PitchPending
	}

	p.CreatedAt, p.TimestampInferred = r.stamp("createdAt", now)
	p.UpdatedAt, _ = r.time("updatedAt")
	return p, r.diags
}

func Message(doc repository.Document, now time.Time) (entity.Message, []Diagnostic) {
	r := newReader("message", MessageAliases, doc)
	m := entity.Message{
		ID:         doc.ID,
		SenderID:   r.str("senderId", true),
		ReceiverID: r.str("receiverId", false),
		Text:       r.str("text", false),
		ImageURL:   r.str("imageUrl", false),
		Read:       r.boolean("read"),
	}

	participants, _ := asStrings(doc.Data["participants"])
	if m.ReceiverID == "" {
		for _, p := range participants {
			if p != m.SenderID {
				m.ReceiverID = p
				break
			}
		}
		if m.ReceiverID == "" {
			r.note("receiverId", "missing")
		}
	}
	m.Participants = entity.Participants(m.SenderID, m.ReceiverID)
	m.ConversationID = entity.ConversationID(m.SenderID, m.ReceiverID)

	if v, ok := r.lookup("productContext"); ok {
		if ctx, ok := v.(map[string]interface{}); ok {
			nested := newReader("message", MessageAliases, repository.Document{ID: doc.ID, Data: ctx})
			m.ProductContext = productContext(nested.str("productId", false), nested.str("productName", false))
		}
	}
	if m.ProductContext == nil {
		m.ProductContext = productContext(r.str("productId", false), r.str("productName", false))
	}

	m.Timestamp, m.TimestampInferred = r.stamp("timestamp", now)
	return m, r.diags
}

func productContext(id, name string) *entity.ProductContext {
	if id == "" {
		return nil
	}
	return &entity.ProductContext{ProductID: id, ProductName: name}
}

func User(doc repository.Document, now time.Time) (entity.User, []Diagnostic) {
	r := newReader("user", UserAliases, doc)
	u := entity.User{
		UID:         doc.ID,
		Email:       r.str("email", false),
		DisplayName: r.str("displayName", false),
		Disabled:    r.boolean("disabled"),
	}

	role := entity.Role(strings.ToLower(r.str("role", false)))
	switch {
	case role == "":
		u.Role = entity.RoleUser
	case entity.ValidRole(role):
		u.Role = role
	default:
		r.note("role", "unknown role "+string(role)+", treated as user")
		u.Role = entity.RoleUser
	}

	u.CreatedAt, u.TimestampInferred = r.stamp("createdAt", now)
	u.LastLoginAt, _ = r.time("lastLoginAt")
	return u, r.diags
}
