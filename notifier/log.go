package notifier

import (
	"context"

	registration "github.com/goliatone/go-registration"
)

// LogNotifier writes notices to a logger instead of sending them. It is
// used when SMTP is not configured.
type LogNotifier struct {
	logger  registration.Logger
	baseURL string
}

var _ registration.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger registration.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger, baseURL: baseURL}
}

func (n *LogNotifier) SendRegistrationEmail(_ context.Context, profile *registration.RegistrationProfile) error {
	n.logger.Info("registration email",
		"account_id", profile.AccountID,
		"activation_url", n.baseURL+"/activate/"+profile.ActivationKey,
	)
	return nil
}

func (n *LogNotifier) SendModeratorEmail(_ context.Context, profile *registration.RegistrationProfile, moderators []*registration.Account) error {
	n.logger.Info("moderator email",
		"account_id", profile.AccountID,
		"moderators", len(moderators),
	)
	return nil
}

func (n *LogNotifier) SendAcceptanceEmail(_ context.Context, profile *registration.RegistrationProfile, rejected bool) error {
	n.logger.Info("acceptance email",
		"account_id", profile.AccountID,
		"rejected", rejected,
	)
	return nil
}
