package registration

import (
	"context"
	"strings"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type ActivateAccountMessage struct {
	ActivationKey string                      `json:"activation_key"`
	OnResult      func(res *ActivationResult) `json:"-"`
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

func (e ActivateAccountMessage) Validate() error {
	if strings.TrimSpace(e.ActivationKey) == "" {
		return ErrActivationKeyRequired
	}
	return nil
}

type ActivateAccountHandler struct {
	engine *Engine
}

var _ command.Commander[ActivateAccountMessage] = (*ActivateAccountHandler)(nil)

func NewActivateAccountHandler(engine *Engine) *ActivateAccountHandler {
	return &ActivateAccountHandler{engine: engine}
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()

	res, err := h.engine.VerifyOrActivate(ctx, event.ActivationKey)
	if err != nil {
		return richError(err, "failed to execute account activation")
	}

	if event.OnResult != nil {
		event.OnResult(res)
	}

	return nil
}
