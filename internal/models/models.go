package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Toggled flips pending <-> confirmed.
func (s Status) Toggled() Status {
	if s == StatusConfirmed {
		return StatusPending
	}
	return StatusConfirmed
}

type Category string

const (
	CategoryMasters      Category = "Masters (1400+ Rating)"
	CategoryIntermediate Category = "Intermediate (1100 - 1399)"
	CategoryOpen         Category = "Open (0 - 1099)"
)

// Categories lists the selectable categories in display order.
var Categories = []Category{CategoryMasters, CategoryIntermediate, CategoryOpen}

// Short is the tier name without the rating band.
func (c Category) Short() string {
	s := string(c)
	if i := strings.Index(s, " ("); i > 0 {
		return s[:i]
	}
	return s
}

// ParseCategory accepts a full label or a short tier name, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, c.Short()) {
			return c, true
		}
	}
	return "", false
}

type Registrant struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Category     Category
	RatingID     string
	Status       Status
	RegisteredAt time.Time
}

// Draft is the unsaved data the registration wizard collects.
type Draft struct {
	Name     string
	Email    string
	Phone    string
	Category Category
	RatingID string
}

// NewDraft returns an empty draft with the default category preselected.
func NewDraft() Draft {
	return Draft{Category: CategoryMasters}
}

// LooksLikeEmail is the loose check the roster applies: it only wants an '@'.
func LooksLikeEmail(s string) bool {
	return strings.Contains(s, "@")
}

// EvidenceText is the pre-filled message a registrant sends along with a
// payment receipt. It only depends on the draft and the fee.
func (d Draft) EvidenceText(fee string) string {
	return "*PAYMENT EVIDENCE*\n\n" +
		"Player: " + d.Name + "\n" +
		"Category: " + string(d.Category) + "\n" +
		"Amount: " + fee + "\n\n" +
		"[Attach Receipt Here]"
}
