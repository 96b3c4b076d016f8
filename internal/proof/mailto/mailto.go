package mailto

import (
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/util"
)

// Channel opens the registrant's mail client addressed to the organiser.
type Channel struct {
	addr string
	fee  string
}

func New(addr, fee string) *Channel {
	return &Channel{addr: addr, fee: fee}
}

func (c *Channel) Name() string { return "mailto" }

func (c *Channel) Link(d models.Draft) string {
	subject := "Payment evidence: " + d.Name
	return "mailto:" + c.addr +
		"?subject=" + util.EncodeURIComponent(subject) +
		"&body=" + util.EncodeURIComponent(d.EvidenceText(c.fee))
}
