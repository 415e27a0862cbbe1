package registration

import (
	"context"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultCommandTimeout bounds each command handler execution.
var DefaultCommandTimeout = time.Second * 10

type RegisterAccountMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	UseHashid bool
	OnResult  func(res *RegistrationResult) `json:"-"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate checks the normalized draft without touching the message.
func (e RegisterAccountMessage) Validate() error {
	draft := e.draft()
	draft.Normalize()
	return draft.Validate()
}

func (e RegisterAccountMessage) draft() AccountDraft {
	return AccountDraft{
		Username:  e.Username,
		Email:     e.Email,
		Password:  e.Password,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Phone:     e.Phone,
		UseHashid: e.UseHashid,
	}
}

type RegisterAccountHandler struct {
	engine *Engine
}

var _ command.Commander[RegisterAccountMessage] = (*RegisterAccountHandler)(nil)

func NewRegisterAccountHandler(engine *Engine) *RegisterAccountHandler {
	return &RegisterAccountHandler{engine: engine}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if err := event.Validate(); err != nil {
		return richError(err, "invalid account registration")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()

	res, err := h.engine.Register(ctx, event.draft())
	if err != nil {
		return richError(err, "account registration failed")
	}

	if event.OnResult != nil {
		event.OnResult(res)
	}

	return nil
}

// richError passes go-errors values through and wraps anything else as an
// internal error.
func richError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
