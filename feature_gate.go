package registration

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// FeatureSignupModeration toggles the moderation step at runtime.
const FeatureSignupModeration = "users.signup.moderation"

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryAuthz, "Feature gate check failed").
		WithCode(goerrors.CodeForbidden)
}

func requireSignupGate(ctx context.Context, featureGate gate.FeatureGate) error {
	if featureGate == nil {
		return nil
	}
	return guard.Require(ctx, featureGate, gate.FeatureUsersSignup,
		guard.WithDisabledError(ErrRegistrationClosed),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}

// FeatureGatePolicy layers feature gate flags over a base PolicyProvider.
// Signup must be open in both; moderation is required if either asks for it.
// Gate errors fall back to the base policy.
type FeatureGatePolicy struct {
	base   PolicyProvider
	gate   gate.FeatureGate
	logger Logger
}

var _ PolicyProvider = (*FeatureGatePolicy)(nil)

// NewFeatureGatePolicy wraps base with featureGate.
func NewFeatureGatePolicy(base PolicyProvider, featureGate gate.FeatureGate) *FeatureGatePolicy {
	return &FeatureGatePolicy{
		base:   base,
		gate:   featureGate,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used for gate failures.
func (p *FeatureGatePolicy) WithLogger(logger Logger) *FeatureGatePolicy {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *FeatureGatePolicy) RegistrationAllowed(ctx context.Context) bool {
	if !p.base.RegistrationAllowed(ctx) {
		return false
	}
	enabled, ok := p.enabled(ctx, gate.FeatureUsersSignup)
	if !ok {
		return true
	}
	return enabled
}

func (p *FeatureGatePolicy) ModerationRequired(ctx context.Context, profile *RegistrationProfile) bool {
	if p.base.ModerationRequired(ctx, profile) {
		return true
	}
	enabled, ok := p.enabled(ctx, FeatureSignupModeration)
	return ok && enabled
}

func (p *FeatureGatePolicy) ActivationWindowDays(ctx context.Context) int {
	return p.base.ActivationWindowDays(ctx)
}

func (p *FeatureGatePolicy) Moderators(ctx context.Context) ([]*Account, error) {
	return p.base.Moderators(ctx)
}

func (p *FeatureGatePolicy) enabled(ctx context.Context, key string) (bool, bool) {
	if p.gate == nil {
		return false, false
	}
	enabled, err := p.gate.Enabled(ctx, key)
	if err != nil {
		p.logger.Warn("feature gate resolution failed", "key", key, "error", err)
		return false, false
	}
	return enabled, true
}
