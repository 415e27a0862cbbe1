package registration

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/goliatone/go-registration"

// DefaultActivationTimeout bounds an activation shared by concurrent callers
// of the same key.
var DefaultActivationTimeout = 30 * time.Second

// RegistrationResult is returned by Register. NotificationErr holds a
// delivery failure for the registration email; the account is persisted
// regardless.
type RegistrationResult struct {
	Account         *Account
	Profile         *RegistrationProfile
	NotificationErr error
}

// ActivationResult is returned by VerifyOrActivate.
type ActivationResult struct {
	Profile           *RegistrationProfile
	ModerationPending bool
	// Activated is true when this call, or an in-flight duplicate it
	// joined, activated the account.
	Activated       bool
	NotificationErr error
}

// ModerationResult is returned by Moderate. Applied is false when a decision
// had already been recorded.
type ModerationResult struct {
	Profile         *RegistrationProfile
	Applied         bool
	NotificationErr error
}

// Engine orchestrates registration, verification, activation and moderation.
type Engine struct {
	repo        AccountRepository
	policy      PolicyProvider
	notifier    Notifier
	tokens      TokenGenerator
	hasher      PasswordHasher
	sinks       EventSinks
	locker      TokenLocker
	featureGate gate.FeatureGate
	logger      Logger
	clock       func() time.Time
	phoneRegion string
	tracer      trace.Tracer
	inflight    singleflight.Group
	// sharedTimeout bounds work detached from the callers that share it.
	sharedTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// NewEngine returns an engine bound to repo and policy.
func NewEngine(repo AccountRepository, policy PolicyProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:        repo,
		policy:      policy,
		notifier:    noopNotifier{},
		tokens:      NewRandomTokenGenerator(),
		hasher:      NewBcryptHasher(),
		locker:      noopLocker{},
		logger:      defLogger{},
		clock:       func() time.Time { return time.Now().UTC() },
		phoneRegion: DefaultPhoneRegion,
		tracer:      otel.Tracer(tracerName),

		sharedTimeout: DefaultActivationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.tokens = g
		}
	}
}

func WithPasswordHasher(h PasswordHasher) EngineOption {
	return func(e *Engine) {
		if h != nil {
			e.hasher = h
		}
	}
}

// WithEventSink adds a lifecycle event subscriber. It can be given
// multiple times.
func WithEventSink(s EventSink) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// WithTokenLocker serializes work per activation key across processes.
func WithTokenLocker(l TokenLocker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithFeatureGate closes signup when gate.FeatureUsersSignup is disabled.
func WithFeatureGate(g gate.FeatureGate) EngineOption {
	return func(e *Engine) {
		e.featureGate = g
	}
}

func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now, used for expiration math.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithActivationTimeout bounds a same-key activation that outlives the
// caller that started it.
func WithActivationTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.sharedTimeout = d
		}
	}
}

// WithPhoneRegion sets the region used to parse phone numbers without a
// country prefix.
func WithPhoneRegion(region string) EngineOption {
	return func(e *Engine) {
		if region != "" {
			e.phoneRegion = region
		}
	}
}

// Register creates an inactive account with its registration profile and
// sends the registration email.
func (e *Engine) Register(ctx context.Context, draft AccountDraft) (res *RegistrationResult, err error) {
	ctx, span := e.tracer.Start(ctx, "registration.Register")
	defer func() { endSpan(span, err) }()

	if e.featureGate != nil {
		if err := requireSignupGate(ctx, e.featureGate); err != nil {
			return nil, err
		}
	}

	if !e.policy.RegistrationAllowed(ctx) {
		return nil, ErrRegistrationClosed
	}

	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(draft.Phone, e.phoneRegion)
	if err != nil {
		return nil, err
	}

	if err := e.checkDuplicates(ctx, draft.Email, draft.Username); err != nil {
		return nil, err
	}

	username := draft.Username
	if username == "" {
		if username, err = generateRandomUsername(ctx, e.repo); err != nil {
			return nil, err
		}
	}

	credential, err := e.hasher.HashPassword(draft.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	key, err := e.tokens.Generate()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation key")
	}

	now := e.clock()
	account := &Account{
		ID:            uuid.New(),
		Username:      username,
		Email:         draft.Email,
		FirstName:     draft.FirstName,
		LastName:      draft.LastName,
		Phone:         phone,
		CredentialRef: credential,
		Metadata:      draft.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if draft.UseHashid {
		if id, err := hashid.NewUUID(strings.ToLower(draft.Email)); err == nil {
			account.ID = id
		}
	}

	profile := &RegistrationProfile{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Account:       account,
		ActivationKey: key,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     now,
		Version:       1,
	}

	if err := e.repo.CreateAccountAndProfile(ctx, account, profile); err != nil {
		if IsDuplicate(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "registration transaction failed")
	}

	res = &RegistrationResult{Account: account, Profile: profile}

	if err := e.notifier.SendRegistrationEmail(ctx, profile); err != nil {
		e.logger.Warn("registration email failed", "account_id", account.ID, "error", err)
		res.NotificationErr = err
	}

	e.emit(ctx, EventAccountRegistered, profile, ActorRef{ID: account.ID.String(), Type: "account"}, "")

	return res, nil
}

func (e *Engine) checkDuplicates(ctx context.Context, email, username string) error {
	existing, err := e.repo.FindAccountByEmailOrUsername(ctx, email, username)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing accounts")
	}

	if existing == nil {
		return nil
	}
	if strings.EqualFold(existing.Email, email) {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}

// ResolveToken returns the profile for key without modifying it.
func (e *Engine) ResolveToken(ctx context.Context, key string) (*RegistrationProfile, error) {
	if !e.tokens.IsWellFormed(key) {
		return nil, ErrMalformedToken
	}

	profile, err := e.repo.FindProfileByToken(ctx, key)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrUnknownToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve activation key")
	}

	if profile == nil {
		return nil, ErrUnknownToken
	}

	return profile, nil
}

// VerifyOrActivate consumes an activation link. With moderation required it
// verifies the profile and notifies moderators, otherwise it activates the
// account. Replayed links are no-ops.
func (e *Engine) VerifyOrActivate(ctx context.Context, key string) (res *ActivationResult, err error) {
	ctx, span := e.tracer.Start(ctx, "registration.VerifyOrActivate")
	defer func() { endSpan(span, err) }()

	if !e.tokens.IsWellFormed(key) {
		return nil, ErrMalformedToken
	}

	if err := ctx.Err(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled during account activation")
	}

	// Same-key callers share one run detached from all of them. Each caller
	// stops waiting on its own context.
	ch := e.inflight.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sharedTimeout)
		defer cancel()
		return e.verifyOrActivate(sharedCtx, key)
	})

	var out singleflight.Result
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	case out = <-ch:
	}

	if out.Err != nil {
		return nil, out.Err
	}

	res = out.Val.(*ActivationResult)
	if out.Shared {
		cp := *res
		cp.Profile = res.Profile.Clone()
		res = &cp
	}

	span.SetAttributes(
		attribute.Bool("registration.moderation_pending", res.ModerationPending),
		attribute.Bool("registration.activated", res.Activated),
	)
	return res, nil
}

type activationOutcome struct {
	profile       *RegistrationProfile
	pending       bool
	newlyVerified bool
	activated     bool
}

func (e *Engine) verifyOrActivate(ctx context.Context, key string) (*ActivationResult, error) {
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to acquire activation key lock")
	}
	defer unlock()

	var out *activationOutcome
	err = e.retryOnConflict(ctx, "verify_or_activate", func() error {
		var err error
		out, err = e.applyActivation(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &ActivationResult{
		Profile:           out.profile,
		ModerationPending: out.pending,
		Activated:         out.activated,
	}

	actor := ActorRef{ID: out.profile.AccountID.String(), Type: "account"}

	if out.pending && out.newlyVerified {
		moderators, err := e.policy.Moderators(ctx)
		if err != nil {
			e.logger.Warn("failed to load moderators", "account_id", out.profile.AccountID, "error", err)
			res.NotificationErr = err
		} else if err := e.notifier.SendModeratorEmail(ctx, out.profile, moderators); err != nil {
			e.logger.Warn("moderator email failed", "account_id", out.profile.AccountID, "error", err)
			res.NotificationErr = err
		}
	}

	if out.activated {
		if err := e.notifier.SendAcceptanceEmail(ctx, out.profile, false); err != nil {
			e.logger.Warn("acceptance email failed", "account_id", out.profile.AccountID, "error", err)
			res.NotificationErr = err
		}
	}

	if out.newlyVerified {
		e.emit(ctx, EventAccountVerified, out.profile, actor, "")
	}
	if out.activated {
		e.emit(ctx, EventAccountActivated, out.profile, actor, "")
	}

	return res, nil
}

func (e *Engine) applyActivation(ctx context.Context, key string) (*activationOutcome, error) {
	profile, err := e.ResolveToken(ctx, key)
	if err != nil {
		return nil, err
	}

	out := &activationOutcome{profile: profile}
	now := e.clock()
	days := e.policy.ActivationWindowDays(ctx)

	if !profile.Activated && e.policy.ModerationRequired(ctx, profile) {
		if profile.Moderated {
			// rejected keys stay consumed
			return out, nil
		}

		out.pending = true
		changed, err := profile.Verify(now, days)
		if err != nil || !changed {
			return out, err
		}

		if err := e.repo.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
		out.newlyVerified = true
		return out, nil
	}

	wasVerified := profile.Verified
	changed, err := profile.Activate(now, days)
	if err != nil || !changed {
		return out, err
	}

	if err := e.repo.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}

	out.activated = true
	out.newlyVerified = !wasVerified
	return out, nil
}

// Moderate records a moderator decision for the profile behind key. The
// moderator must already be authorized by the caller. A second decision is
// a no-op reported with Applied=false.
func (e *Engine) Moderate(ctx context.Context, key string, decision ModerationDecision, moderator *Account) (res *ModerationResult, err error) {
	ctx, span := e.tracer.Start(ctx, "registration.Moderate")
	defer func() { endSpan(span, err) }()

	if moderator == nil {
		return nil, ErrModeratorRequired
	}

	status, err := ParseModerationStatus(string(decision.Status))
	if err != nil {
		return nil, err
	}
	decision.Status = status

	if !e.tokens.IsWellFormed(key) {
		return nil, ErrMalformedToken
	}

	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to acquire activation key lock")
	}
	defer unlock()

	var (
		profile   *RegistrationProfile
		applied   bool
		activated bool
	)

	err = e.retryOnConflict(ctx, "moderate", func() error {
		var err error
		applied, activated = false, false

		profile, err = e.ResolveToken(ctx, key)
		if err != nil {
			return err
		}

		wasActive := profile.Activated
		changed, err := profile.Moderate(e.clock(), decision, moderator, e.policy.ActivationWindowDays(ctx))
		if err != nil || !changed {
			return err
		}

		if err := e.repo.SaveProfile(ctx, profile); err != nil {
			return err
		}

		applied = true
		activated = !wasActive && profile.Activated
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &ModerationResult{Profile: profile, Applied: applied}
	span.SetAttributes(
		attribute.Bool("registration.applied", applied),
		attribute.String("registration.decision", string(status)),
	)

	if !applied {
		return res, nil
	}

	rejected := status == ModerationReject
	if rejected || activated {
		if err := e.notifier.SendAcceptanceEmail(ctx, profile, rejected); err != nil {
			e.logger.Warn("acceptance email failed", "account_id", profile.AccountID, "rejected", rejected, "error", err)
			res.NotificationErr = err
		}
	}

	actor := ActorRef{ID: moderator.ID.String(), Type: "moderator"}
	e.emit(ctx, EventAccountModerated, profile, actor, status)
	if activated {
		e.emit(ctx, EventAccountActivated, profile, actor, status)
	}

	return res, nil
}

// UnverifiedProfiles lists profiles whose email was never confirmed.
func (e *Engine) UnverifiedProfiles(ctx context.Context, limit int) ([]*RegistrationProfile, error) {
	return e.listProfiles(ctx, ProfileFilter{Verified: Bool(false), Limit: limit})
}

// UnmoderatedProfiles lists verified profiles waiting for a decision.
func (e *Engine) UnmoderatedProfiles(ctx context.Context, limit int) ([]*RegistrationProfile, error) {
	return e.listProfiles(ctx, ProfileFilter{Verified: Bool(true), Moderated: Bool(false), Limit: limit})
}

// InactivatedProfiles lists verified profiles that are not active.
func (e *Engine) InactivatedProfiles(ctx context.Context, limit int) ([]*RegistrationProfile, error) {
	return e.listProfiles(ctx, ProfileFilter{Verified: Bool(true), Activated: Bool(false), Limit: limit})
}

func (e *Engine) listProfiles(ctx context.Context, filter ProfileFilter) ([]*RegistrationProfile, error) {
	profiles, err := e.repo.ListProfiles(ctx, filter)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list registration profiles")
	}
	return profiles, nil
}

// retryOnConflict runs fn and, on a concurrent modification, runs it once
// more. fn must re-read state so idempotency is checked again.
func (e *Engine) retryOnConflict(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !IsConcurrentModification(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op)
	default:
	}

	e.logger.Debug("concurrent modification, retrying", "operation", op)
	return fn()
}

func (e *Engine) emit(ctx context.Context, typ EventType, profile *RegistrationProfile, actor ActorRef, decision ModerationStatus) {
	if len(e.sinks) == 0 {
		return
	}

	event := LifecycleEvent{
		Type:       typ,
		AccountID:  profile.AccountID,
		Account:    profile.Account.Clone(),
		Actor:      actor,
		Decision:   decision,
		OccurredAt: e.clock(),
	}

	if err := e.sinks.Record(ctx, event); err != nil {
		e.logger.Warn("lifecycle event sink failed", "event", string(typ), "account_id", profile.AccountID, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
