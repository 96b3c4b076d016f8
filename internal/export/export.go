// Package export renders the roster for organisers and signs export links.
package export

import (
	"bytes"
	"crypto/hmac"
	"encoding/csv"
	"net/url"
	"strconv"

	"scrabble-bot/internal/models"
	"scrabble-bot/internal/util"
)

const tokenScope = "export:roster"

var header = []string{"#", "name", "email", "phone", "category", "rating_id", "status", "registered_at"}

// Token is the HMAC that authorizes a roster download.
func Token(secret string) string {
	return util.HMACSHA256Hex(secret, tokenScope)
}

func Verify(secret, token string) bool {
	return hmac.Equal([]byte(token), []byte(Token(secret)))
}

// Link is the download URL handed to admins. baseURL may be empty, giving a
// relative link.
func Link(baseURL, secret string) string {
	return baseURL + "/export/roster.csv?token=" + url.QueryEscape(Token(secret))
}

// CSV lists registrants oldest first, numbered in registration order.
func CSV(r models.Roster) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i := r.Len() - 1; i >= 0; i-- {
		p := r.At(i)
		row := []string{
			strconv.Itoa(r.Len() - i),
			p.Name,
			p.Email,
			p.Phone,
			string(p.Category),
			p.RatingID,
			string(p.Status),
			util.FormatRegisteredAt(p.RegisteredAt),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
