// Package notify delivers templated customer notifications such as order
// confirmation emails.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Sender delivers a notification rendered from templateID with vars.
type Sender interface {
	Send(ctx context.Context, templateID string, vars map[string]string) error
}

// Log writes notifications to the logger instead of delivering them.
type Log struct{}

func (Log) Send(ctx context.Context, templateID string, vars map[string]string) error {
	zctx.From(ctx).Info("Notification",
		zap.String("template", templateID),
		zap.Any("vars", vars),
	)
	return nil
}
