package models

import (
	"errors"
	"fmt"
	"strings"

	"scrabble-bot/internal/store"
)

var ErrInvalidRecord = errors.New("invalid registrant record")

// FromRecord maps a loosely-typed store row to a Registrant. Rows missing an
// id, a name, a known status or a registration instant are rejected.
// Unknown category labels are kept verbatim.
func FromRecord(rec store.Record) (Registrant, error) {
	r := Registrant{
		ID:       text(rec[store.ColID]),
		Name:     text(rec[store.ColName]),
		Email:    text(rec[store.ColEmail]),
		Phone:    text(rec[store.ColPhone]),
		RatingID: text(rec[store.ColRatingID]),
		Status:   Status(strings.ToLower(text(rec[store.ColStatus]))),
	}
	if r.ID == "" {
		return Registrant{}, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if r.Name == "" {
		return Registrant{}, fmt.Errorf("%w: %s: missing name", ErrInvalidRecord, r.ID)
	}
	if !r.Status.Valid() {
		return Registrant{}, fmt.Errorf("%w: %s: unknown status %q", ErrInvalidRecord, r.ID, r.Status)
	}
	ts, ok := store.AsTime(rec[store.ColRegisteredAt])
	if !ok {
		return Registrant{}, fmt.Errorf("%w: %s: bad registered_at", ErrInvalidRecord, r.ID)
	}
	r.RegisteredAt = ts

	cat := text(rec[store.ColCategory])
	if c, ok := ParseCategory(cat); ok {
		r.Category = c
	} else {
		r.Category = Category(cat)
	}
	return r, nil
}

// InsertRecord builds the insert payload for a draft. Status is always
// pending whatever the caller holds; id and registered_at are left to the store.
func InsertRecord(d Draft) store.Record {
	return store.Record{
		store.ColName:     strings.TrimSpace(d.Name),
		store.ColEmail:    strings.TrimSpace(d.Email),
		store.ColPhone:    strings.TrimSpace(d.Phone),
		store.ColCategory: string(d.Category),
		store.ColRatingID: strings.TrimSpace(d.RatingID),
		store.ColStatus:   string(StatusPending),
	}
}

func text(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
