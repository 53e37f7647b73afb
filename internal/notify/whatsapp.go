package notify

import (
	"context"
	"net/url"
	"strings"

	"umbrella/internal/domain"
	"umbrella/internal/models"
)

// WhatsAppLinkSender turns a message into a wa.me deep link. Nothing goes
// over the network here; the client app opens the link on the user's device.
type WhatsAppLinkSender struct {
	businessNumber string
}

func NewWhatsAppLinkSender(businessNumber string) *WhatsAppLinkSender {
	if businessNumber == "" {
		businessNumber = models.WhatsAppBusinessNumber
	}
	return &WhatsAppLinkSender{businessNumber: businessNumber}
}

func (s *WhatsAppLinkSender) Send(ctx context.Context, phone, text string) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{
		Delivered: true,
		URL:       s.Link(phone, text),
	}, nil
}

func (s *WhatsAppLinkSender) Link(phone, text string) string {
	number := NormalizePhone(phone)
	if number == "" {
		number = s.businessNumber
	}
	return "https://wa.me/" + number + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// NormalizePhone keeps digits only and rewrites a local 0 prefix to 62.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}
