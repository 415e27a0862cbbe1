package registration

import (
	"time"

	"github.com/google/uuid"
)

// ProfileState is the lifecycle position of a RegistrationProfile derived
// from its flags.
type ProfileState string

const (
	StatePending   ProfileState = "pending"
	StateVerified  ProfileState = "verified"
	StateActivated ProfileState = "activated"
	StateRejected  ProfileState = "rejected"
)

var profileTransitions = map[ProfileState]map[ProfileState]struct{}{
	StatePending: {
		StateVerified:  {},
		StateActivated: {},
	},
	StateVerified: {
		StateActivated: {},
		StateRejected:  {},
	},
}

func canTransition(from, to ProfileState) bool {
	if allowed, ok := profileTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// State derives the current ProfileState.
func (p *RegistrationProfile) State() ProfileState {
	switch {
	case p.Activated:
		return StateActivated
	case p.Moderated && p.ModerationStatus == ModerationReject:
		return StateRejected
	case p.Verified:
		return StateVerified
	default:
		return StatePending
	}
}

// Consumed reports whether the activation key can no longer change state.
func (p *RegistrationProfile) Consumed() bool {
	s := p.State()
	return s == StateActivated || s == StateRejected
}

// ActivationExpired reports whether the activation window elapsed.
// activationDays <= 0 means keys never expire.
func (p *RegistrationProfile) ActivationExpired(now time.Time, activationDays int) bool {
	if p.Activated {
		return false
	}
	if activationDays <= 0 {
		return false
	}
	deadline := p.CreatedAt.Add(time.Duration(activationDays) * 24 * time.Hour)
	return !now.Before(deadline)
}

// ExpiresAt returns the activation deadline, zero when keys never expire.
func (p *RegistrationProfile) ExpiresAt(activationDays int) time.Time {
	if activationDays <= 0 {
		return time.Time{}
	}
	return p.CreatedAt.Add(time.Duration(activationDays) * 24 * time.Hour)
}

// Verify marks the email as confirmed. It reports false when the profile was
// already verified.
func (p *RegistrationProfile) Verify(now time.Time, activationDays int) (bool, error) {
	if p.Verified {
		return false, nil
	}

	from := p.State()
	if !canTransition(from, StateVerified) {
		return false, ErrInvalidTransition
	}

	if p.ActivationExpired(now, activationDays) {
		return false, ErrTokenExpired
	}

	p.Verified = true
	p.UpdatedAt = now
	return true, nil
}

// Activate activates the profile and its account. Activated or rejected
// profiles are left untouched and report false.
func (p *RegistrationProfile) Activate(now time.Time, activationDays int) (bool, error) {
	if p.Consumed() {
		return false, nil
	}

	from := p.State()
	if !canTransition(from, StateActivated) {
		return false, ErrInvalidTransition
	}

	if p.ActivationExpired(now, activationDays) {
		return false, ErrTokenExpired
	}

	p.Verified = true
	p.Activated = true
	p.UpdatedAt = now
	if p.Account != nil {
		p.Account.Active = true
		p.Account.UpdatedAt = now
	}
	return true, nil
}

// Moderate records a moderation decision once. Approval activates the
// profile, rejection consumes the key permanently.
func (p *RegistrationProfile) Moderate(now time.Time, decision ModerationDecision, moderator *Account, activationDays int) (bool, error) {
	if p.Moderated {
		return false, nil
	}

	if moderator == nil {
		return false, ErrModeratorRequired
	}

	status, err := ParseModerationStatus(string(decision.Status))
	if err != nil {
		return false, err
	}

	from := p.State()
	target := StateActivated
	if status == ModerationReject {
		target = StateRejected
	}

	switch {
	case from == StateActivated && status == ModerationApprove:
		// late approval for an account activated before moderation
	case from == StatePending || !canTransition(from, target):
		return false, ErrInvalidTransition
	}

	if status == ModerationApprove {
		if _, err := p.Activate(now, activationDays); err != nil {
			return false, err
		}
	}

	moderatedAt := now
	p.Moderated = true
	p.ModerationStatus = status
	p.ModerationComment = decision.Comment
	p.ModerationTime = &moderatedAt
	p.Moderator = moderator
	if moderator.ID != uuid.Nil {
		id := moderator.ID
		p.ModeratorID = &id
	}
	p.UpdatedAt = now
	return true, nil
}
