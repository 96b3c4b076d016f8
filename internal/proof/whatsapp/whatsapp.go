package whatsapp

import (
	"strings"

	"scrabble-bot/internal/models"
	"scrabble-bot/internal/util"
)

// Channel opens a WhatsApp chat with the organiser, message pre-filled.
type Channel struct {
	number string
	fee    string
}

// New takes the number in international format; '+' and spaces are dropped.
func New(number, fee string) *Channel {
	number = strings.NewReplacer("+", "", " ", "", "-", "").Replace(number)
	return &Channel{number: number, fee: fee}
}

func (c *Channel) Name() string { return "whatsapp" }

func (c *Channel) Link(d models.Draft) string {
	return "https://wa.me/" + c.number + "?text=" + util.EncodeURIComponent(d.EvidenceText(c.fee))
}
