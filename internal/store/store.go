// Package store defines the contract of the remote record store that holds
// the authoritative registrant rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column names of the registrants table.
const (
	TableRegistrants = "players"

	ColID           = "id"
	ColName         = "name"
	ColEmail        = "email"
	ColPhone        = "phone"
	ColCategory     = "category"
	ColRatingID     = "rating_id"
	ColStatus       = "status"
	ColRegisteredAt = "registered_at"
)

// TimeLayout is the canonical text form of instants in backends that store strings.
// Fixed-width UTC so that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("record not found")

// Record is one loosely-typed row as the remote store returns it.
type Record map[string]any

type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Change is the opaque event delivered for any row-level change in a table.
type Change struct {
	Table string
}

type Subscription interface {
	Unsubscribe()
}

// RecordStore is the narrow interface the synchronizer talks to.
type RecordStore interface {
	Query(ctx context.Context, table, orderBy string, dir Direction) ([]Record, error)
	// Insert assigns id and registered_at.
	Insert(ctx context.Context, table string, rec Record) error
	Update(ctx context.Context, table, id string, patch Record) error
	Delete(ctx context.Context, table, id string) error
	// SubscribeToChanges invokes handler on any insert/update/delete in table.
	// The handler may be called from any goroutine.
	SubscribeToChanges(table string, handler func(Change)) (Subscription, error)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// SortRecords orders recs in place by the orderBy column. Ties keep insertion order.
func SortRecords(recs []Record, orderBy string, dir Direction) {
	sort.SliceStable(recs, func(i, j int) bool {
		c := CompareValues(recs[i][orderBy], recs[j][orderBy])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}

// CompareValues orders two loosely-typed column values. Instants are compared
// chronologically whether they arrive as time.Time or as TimeLayout/RFC3339 text.
func CompareValues(a, b any) int {
	ta, aok := AsTime(a)
	tb, bok := AsTime(b)
	if aok && bok {
		return ta.Compare(tb)
	}
	switch av := a.(type) {
	case int:
		if bv, ok := b.(int); ok {
			return compareOrdered(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return compareOrdered(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(valueOrEmpty(a)), fmt.Sprint(valueOrEmpty(b)))
}

// AsTime interprets v as an instant.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// Clone returns a shallow copy so callers can't alias a backend's internal row.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
