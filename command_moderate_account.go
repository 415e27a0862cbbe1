package registration

import (
	"context"
	"strings"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

// ModerateAccountMessage carries a decision from an already authorized
// moderator.
type ModerateAccountMessage struct {
	ActivationKey string                      `json:"activation_key"`
	Decision      string                      `json:"decision"`
	Comment       string                      `json:"comment"`
	Moderator     *Account                    `json:"-"`
	OnResult      func(res *ModerationResult) `json:"-"`
}

func (e ModerateAccountMessage) Type() string { return "account.moderate" }

func (e ModerateAccountMessage) Validate() error {
	if strings.TrimSpace(e.ActivationKey) == "" {
		return ErrActivationKeyRequired
	}
	if _, err := ParseModerationStatus(e.Decision); err != nil {
		return err
	}
	if e.Moderator == nil {
		return ErrModeratorRequired
	}
	return nil
}

type ModerateAccountHandler struct {
	engine *Engine
}

var _ command.Commander[ModerateAccountMessage] = (*ModerateAccountHandler)(nil)

func NewModerateAccountHandler(engine *Engine) *ModerateAccountHandler {
	return &ModerateAccountHandler{engine: engine}
}

func (h *ModerateAccountHandler) Execute(ctx context.Context, event ModerateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account moderation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ModerateAccountHandler) execute(ctx context.Context, event ModerateAccountMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()

	decision := ModerationDecision{
		Status:  ModerationStatus(event.Decision),
		Comment: event.Comment,
	}

	res, err := h.engine.Moderate(ctx, event.ActivationKey, decision, event.Moderator)
	if err != nil {
		return richError(err, "failed to execute account moderation")
	}

	if event.OnResult != nil {
		event.OnResult(res)
	}

	return nil
}
