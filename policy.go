package registration

import (
	"context"
	"net/mail"
	"strings"
)

// PolicyConfig holds registration settings
type PolicyConfig interface {
	GetRegistrationOpen() bool
	GetModerationRequired() bool
	GetActivationDays() int
	GetModerators() []string
}

// StaticPolicy is a PolicyProvider with fixed values.
type StaticPolicy struct {
	Open           bool
	Moderation     bool
	ActivationDays int
	ModeratorList  []*Account
}

var _ PolicyProvider = (*StaticPolicy)(nil)

// NewConfigPolicy builds a StaticPolicy from config. Moderators are given as
// RFC 5322 addresses ("Jane Doe <jane@example.com>"); invalid entries are
// skipped.
func NewConfigPolicy(cfg PolicyConfig) *StaticPolicy {
	p := &StaticPolicy{
		Open:           cfg.GetRegistrationOpen(),
		Moderation:     cfg.GetModerationRequired(),
		ActivationDays: cfg.GetActivationDays(),
	}

	for _, entry := range cfg.GetModerators() {
		if acc := moderatorFromAddress(entry); acc != nil {
			p.ModeratorList = append(p.ModeratorList, acc)
		}
	}

	return p
}

func (p *StaticPolicy) RegistrationAllowed(context.Context) bool {
	return p.Open
}

func (p *StaticPolicy) ModerationRequired(context.Context, *RegistrationProfile) bool {
	return p.Moderation
}

func (p *StaticPolicy) ActivationWindowDays(context.Context) int {
	return p.ActivationDays
}

func (p *StaticPolicy) Moderators(context.Context) ([]*Account, error) {
	out := make([]*Account, len(p.ModeratorList))
	copy(out, p.ModeratorList)
	return out, nil
}

func moderatorFromAddress(entry string) *Account {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}

	addr, err := mail.ParseAddress(entry)
	if err != nil {
		return nil
	}

	acc := &Account{
		Email:    addr.Address,
		Username: addr.Address,
		Active:   true,
	}

	if addr.Name != "" {
		parts := strings.SplitN(addr.Name, " ", 2)
		acc.FirstName = parts[0]
		if len(parts) > 1 {
			acc.LastName = parts[1]
		}
	}

	return acc
}
