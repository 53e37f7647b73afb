package notify

import (
	"context"
	"errors"

	"umbrella/internal/domain"
)

// MultiSender delivers through every channel. The first link produced wins
// and the errors of all failed channels are joined.
type MultiSender []domain.NotificationSender

// NoChannelReason is reported when no channel is configured.
const NoChannelReason = "no notification channel configured"

func (m MultiSender) Send(ctx context.Context, phone, text string) (domain.SendResult, error) {
	if len(m) == 0 {
		return domain.SendResult{Reason: NoChannelReason}, nil
	}
	var (
		merged domain.SendResult
		errs   []error
	)
	for _, s := range m {
		res, err := s.Send(ctx, phone, text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged.Delivered = merged.Delivered || res.Delivered
		if merged.URL == "" {
			merged.URL = res.URL
		}
	}
	if err := errors.Join(errs...); err != nil {
		merged.Reason = err.Error()
		return merged, err
	}
	return merged, nil
}
