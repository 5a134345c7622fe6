package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

type flowState string

const (
	stateStart              flowState = "START"
	stateThrottleCheck      flowState = "THROTTLE_CHECK"
	stateInputValidated     flowState = "INPUT_VALIDATED"
	stateIdentityResolved   flowState = "IDENTITY_RESOLVED"
	stateCredentialVerified flowState = "CREDENTIAL_VERIFIED"
	stateSuccess            flowState = "SUCCESS"
	stateFailure            flowState = "FAILURE"
)

// flow parameterises the login state machine for one operation. Steps left
// nil are skipped.
type flow struct {
	name string
	// throttled flows pass the limiter first and count every later failure
	// against (throttleKey, source address).
	throttled   bool
	throttleKey string

	validate func() error
	resolve  func(ctx context.Context) (*domain.Identity, error)
	verify   func(ctx context.Context, identity *domain.Identity) error
	// commit applies the flow's mutation and returns the fresh record.
	commit func(ctx context.Context, identity *domain.Identity) (*domain.Identity, error)
}

// run drives f from START to SUCCESS or FAILURE. On success the session
// data is derived from the record returned by the last step and handed to
// the request's session transport.
func (s *AuthService) run(ctx context.Context, req Request, f flow) (*domain.SessionData, *domain.Identity, error) {
	state := stateStart
	throttlePassed := false

	fail := func(err error) (*domain.SessionData, *domain.Identity, error) {
		if throttlePassed {
			if lerr := s.limiter.RecordFailure(ctx, req.SourceAddr, f.throttleKey); lerr != nil {
				err = lerr
			}
		}
		de := apperrors.ToDomainError(err)
		s.recordOutcome(f.name, de)
		s.logger.Info("auth flow failed",
			zap.String("flow", f.name),
			zap.String("from", string(state)),
			zap.String("state", string(stateFailure)),
			zap.String("error_type", de.Type),
			zap.Error(de.Err))
		return nil, nil, de
	}

	if f.throttled {
		state = stateThrottleCheck
		if err := s.limiter.CheckBlocked(ctx, req.SourceAddr, f.throttleKey); err != nil {
			return fail(err)
		}
		throttlePassed = true
	}

	state = stateInputValidated
	if f.validate != nil {
		if err := f.validate(); err != nil {
			return fail(err)
		}
	}

	state = stateIdentityResolved
	identity, err := f.resolve(ctx)
	if err != nil {
		return fail(err)
	}

	state = stateCredentialVerified
	if f.verify != nil {
		if err := f.verify(ctx, identity); err != nil {
			return fail(err)
		}
	}

	state = stateSuccess
	if f.commit != nil {
		if identity, err = f.commit(ctx, identity); err != nil {
			return fail(err)
		}
	}
	if f.throttled {
		if err := s.limiter.RecordSuccess(ctx, req.SourceAddr, f.throttleKey); err != nil {
			return fail(err)
		}
	}

	data := domain.NewSessionData(identity)
	if err := s.saveSession(ctx, req, data); err != nil {
		return fail(err)
	}
	s.recordOutcome(f.name, nil)
	return data, identity, nil
}

func (s *AuthService) recordOutcome(flowName string, de *apperrors.DomainError) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case de == nil:
	case de.Kind == apperrors.KindThrottled:
		outcome = "throttled"
	case de.Kind == apperrors.KindInfrastructure:
		outcome = "error"
	default:
		outcome = "failure"
	}
	s.metrics.RecordAuthOutcome(flowName, outcome)
}
