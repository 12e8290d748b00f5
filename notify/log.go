package notify

import (
	"context"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/logging"
)

// LogSender writes notifications to the log instead of mailing them. With
// ShowLinks set it includes the link, which is handy in development and must
// stay off in production.
type LogSender struct {
	Logger    logging.Logger
	ShowLinks bool
}

func (s LogSender) Send(ctx context.Context, n core.Notification) error {
	args := []any{"kind", n.Kind, "to", n.To}
	if s.ShowLinks && n.Payload["link"] != "" {
		args = append(args, "link", n.Payload["link"])
	}
	s.Logger.Info(ctx, "notification", args...)
	return nil
}
