package proof

import "scrabble-bot/internal/models"

// Channel builds the out-of-band action a registrant uses to send payment
// evidence. Link must be deterministic for a given draft.
type Channel interface {
	Name() string
	Link(d models.Draft) string
}
