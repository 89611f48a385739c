package auth

import (
	"context"
	"log/slog"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils/logging"
)

// Notifier delivers password reset instructions to a user.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user schema.User, token string) error
}

// LogNotifier writes reset tokens to the structured log, for deployments
// without an outbound mail integration.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, user schema.User, token string) error {
	n.logger.InfoContext(ctx, "password reset requested",
		logging.Code(logging.PASSWORD),
		"user_id", user.Id,
		"email", user.Email,
		"reset_token", token,
	)
	return nil
}
