package registration

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the end-user identity owned by the AccountRepository.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName     string         `bun:"first_name" json:"first_name,omitempty"`
	LastName      string         `bun:"last_name" json:"last_name,omitempty"`
	Phone         string         `bun:"phone_number" json:"phone_number,omitempty"`
	CredentialRef string         `bun:"credential_ref" json:"-"`
	Active        bool           `bun:"is_active,notnull" json:"is_active"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

// AddMetadata will append information to the metadata attribute
func (a *Account) AddMetadata(key string, val any) *Account {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// DisplayName returns "First Last" falling back to the username.
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// ModerationStatus is the outcome recorded by a moderator.
type ModerationStatus string

const (
	ModerationApprove ModerationStatus = "approve"
	ModerationReject  ModerationStatus = "reject"
)

// ParseModerationStatus accepts "approve"/"reject" in any case.
func ParseModerationStatus(s string) (ModerationStatus, error) {
	switch ModerationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ModerationApprove:
		return ModerationApprove, nil
	case ModerationReject:
		return ModerationReject, nil
	}
	return "", ErrInvalidDecision
}

// ModerationDecision is what a moderator submits for a verified profile.
type ModerationDecision struct {
	Status  ModerationStatus
	Comment string
}

// RegistrationProfile holds activation, verification and moderation state
// for exactly one Account.
type RegistrationProfile struct {
	bun.BaseModel     `bun:"table:registration_profiles,alias:rp"`
	ID                uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID         uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account           *Account         `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	ActivationKey     string           `bun:"activation_key,notnull,unique" json:"-"`
	Verified          bool             `bun:"verified,notnull" json:"verified"`
	Activated         bool             `bun:"activated,notnull" json:"activated"`
	Moderated         bool             `bun:"moderated,notnull" json:"moderated"`
	ModeratorID       *uuid.UUID       `bun:"moderator_id,type:uuid" json:"moderator_id,omitempty"`
	Moderator         *Account         `bun:"rel:belongs-to,join:moderator_id=id" json:"moderator,omitempty"`
	ModerationTime    *time.Time       `bun:"moderation_time,nullzero" json:"moderation_time,omitempty"`
	ModerationStatus  ModerationStatus `bun:"moderation_status" json:"moderation_status,omitempty"`
	ModerationComment string           `bun:"moderation_comment" json:"moderation_comment,omitempty"`
	CreatedAt         time.Time        `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time        `bun:"updated_at,notnull" json:"updated_at"`
	Version           int64            `bun:"version,notnull" json:"version"`
}

// Clone returns a copy of the account and its metadata.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}

// Clone returns a copy that does not share the account pointers.
func (p *RegistrationProfile) Clone() *RegistrationProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Account = p.Account.Clone()
	c.Moderator = p.Moderator.Clone()
	if p.ModeratorID != nil {
		id := *p.ModeratorID
		c.ModeratorID = &id
	}
	if p.ModerationTime != nil {
		t := *p.ModerationTime
		c.ModerationTime = &t
	}
	return &c
}

// AccountDraft is the caller supplied input for Register.
type AccountDraft struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	// UseHashid derives the account ID from the email address.
	UseHashid bool           `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProfileFilter narrows ListProfiles. Nil fields are ignored.
type ProfileFilter struct {
	Verified  *bool
	Activated *bool
	Moderated *bool
	Limit     int
}

// Bool is a helper to build ProfileFilter values.
func Bool(v bool) *bool {
	return &v
}
