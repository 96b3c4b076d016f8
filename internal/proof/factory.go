package proof

import (
	"fmt"

	"scrabble-bot/internal/config"
	"scrabble-bot/internal/proof/mailto"
	"scrabble-bot/internal/proof/whatsapp"
)

func NewChannel(cfg config.Config) (Channel, error) {
	switch cfg.ProofChannel {
	case "", "whatsapp":
		if cfg.Event.WhatsAppNumber == "" {
			return nil, fmt.Errorf("whatsapp proof channel: no number configured")
		}
		return whatsapp.New(cfg.Event.WhatsAppNumber, cfg.Event.Fee), nil
	case "mailto":
		if cfg.Event.ProofEmail == "" {
			return nil, fmt.Errorf("mailto proof channel: no address configured")
		}
		return mailto.New(cfg.Event.ProofEmail, cfg.Event.Fee), nil
	default:
		return nil, fmt.Errorf("unknown proof channel: %s", cfg.ProofChannel)
	}
}
