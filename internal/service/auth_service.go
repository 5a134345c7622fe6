package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const (
	ErrTypeInvalidCredentials   = "/errors/user/sign-in/invalid-credentials"
	ErrTypeEmailNotConfirmed    = "/errors/user/sign-in/email-not-confirmed"
	ErrTypeTokenInvalid         = "/errors/user/token/invalid"
	ErrTypeTokenIssue           = "/errors/user/token/issue-failed"
	ErrTypeUserNotFound         = "/errors/user/not-found"
	ErrTypeEmailRegistered      = "/errors/user/signup/email-already-registered"
	ErrTypeAlreadyConfirmed     = "/errors/user/resend/already-confirmed"
	ErrTypeEmailAlreadyUsed     = "/errors/user/new-email/email-already-used"
	ErrTypeDeleteEmailMismatch  = "/errors/user/delete/email-mismatch"
	ErrTypeDatabase             = "/errors/user/database-error"
	ErrTypePasswordHash         = "/errors/user/password/hash-failed"
	ErrTypeSessionSave          = "/errors/user/session/save-failed"
	ErrTypeCurrentPasswordWrong = "/errors/user/change-password/invalid-credentials"
)

// Throttler is the limiter contract used by throttled flows.
type Throttler interface {
	CheckBlocked(ctx context.Context, address, identity string) error
	RecordFailure(ctx context.Context, address, identity string) error
	RecordSuccess(ctx context.Context, address, identity string) error
}

// TokenIssuer issues and verifies purpose-scoped flow tokens.
type TokenIssuer interface {
	Issue(subjectID string, purpose domain.TokenPurpose, ttl time.Duration, aux string) (string, error)
	Verify(token string, expected domain.TokenPurpose) (*domain.TokenClaims, error)
}

// PasswordHasher hashes and compares credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashed, plain string) bool
}

// OutcomeRecorder counts flow outcomes.
type OutcomeRecorder interface {
	RecordAuthOutcome(flow, outcome string)
}

// SessionTransport persists session data for the current caller.
type SessionTransport interface {
	Save(ctx context.Context, data *domain.SessionData) error
	Destroy(ctx context.Context) error
}

// Request carries per-request context every flow needs.
type Request struct {
	SourceAddr string
	Session    SessionTransport
}

// AuthService orchestrates every authentication and account flow.
type AuthService struct {
	identities repository.IdentityRepository
	limiter    Throttler
	tokens     TokenIssuer
	hasher     PasswordHasher
	dispatcher events.Dispatcher
	metrics    OutcomeRecorder
	logger     *zap.Logger
	tokenTTL   time.Duration
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Identities repository.IdentityRepository
	Limiter    Throttler
	Tokens     TokenIssuer
	Hasher     PasswordHasher
	Dispatcher events.Dispatcher
	Metrics    OutcomeRecorder
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	ttl := cfg.TokenTTL()
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.NewInMemoryDispatcher(deps.Logger)
	}
	return &AuthService{
		identities: deps.Identities,
		limiter:    deps.Limiter,
		tokens:     deps.Tokens,
		hasher:     deps.Hasher,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		tokenTTL:   ttl,
		now:        deps.Now,
	}
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	ResendToken   string
	ExistsAlready bool
}

// Register creates an identity with a password and sends the confirmation
// mail. Registering an existing but unconfirmed email re-sends the mail and
// reports ExistsAlready; the stored password is left untouched.
func (s *AuthService) Register(ctx context.Context, req Request, rawEmail, password string) (*RegisterResult, error) {
	email, err := validateEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInfrastructure(ErrTypePasswordHash, "The password could not be hashed", err)
	}

	existsAlready := false
	identity, err := s.identities.Create(ctx, email, hash)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		identity, err = s.identities.FindByEmail(ctx, email)
		if err != nil {
			return nil, s.storeError(err)
		}
		if identity.EmailConfirmed {
			return nil, apperrors.NewConflict(ErrTypeEmailRegistered, "This email address is already registered")
		}
		existsAlready = true
	} else if err != nil {
		return nil, s.storeError(err)
	}

	resendToken, err := s.issue(identity.ID, domain.PurposeResendConfirmation, "")
	if err != nil {
		return nil, err
	}
	if err := s.sendMail(ctx, events.EventConfirmationRequested, identity, identity.Email, domain.PurposeEmailConfirmation, "", false); err != nil {
		return nil, err
	}

	s.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.Bool("exists_already", existsAlready))
	return &RegisterResult{ResendToken: resendToken, ExistsAlready: existsAlready}, nil
}

// ResendConfirmation re-sends the confirmation mail for the identity named by
// a resend token.
func (s *AuthService) ResendConfirmation(ctx context.Context, req Request, resendToken string) (string, error) {
	if err := validateTokenShape(resendToken); err != nil {
		return "", err
	}
	identity, err := s.identityFromToken(ctx, resendToken, domain.PurposeResendConfirmation)
	if err != nil {
		return "", err
	}
	if identity.EmailConfirmed {
		return "", apperrors.NewPrecondition(ErrTypeAlreadyConfirmed, "The email address is already confirmed")
	}
	if err := s.sendMail(ctx, events.EventConfirmationRequested, identity, identity.Email, domain.PurposeEmailConfirmation, "", false); err != nil {
		return "", err
	}
	return "The verification email was sent", nil
}

// ConfirmResult is returned by ConfirmAndSignIn.
type ConfirmResult struct {
	Session              *domain.SessionData
	ProfileExistsAlready bool
}

// ConfirmAndSignIn marks the email of the token's subject as confirmed and
// signs the caller in.
func (s *AuthService) ConfirmAndSignIn(ctx context.Context, req Request, token string) (*ConfirmResult, error) {
	data, identity, err := s.run(ctx, req, flow{
		name:     "confirm",
		validate: func() error { return validateTokenShape(token) },
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			return s.identityFromToken(ctx, token, domain.PurposeEmailConfirmation)
		},
		commit: s.confirmEmail,
	})
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Session: data, ProfileExistsAlready: identity.ProfileExists()}, nil
}

// SignInWithPassword authenticates email and password. Unknown email, wrong
// password and disabled password sign-in are indistinguishable to the
// caller; an unconfirmed email is only reported once the password matched.
func (s *AuthService) SignInWithPassword(ctx context.Context, req Request, rawEmail, password string) (*domain.SessionData, error) {
	var email string
	data, _, err := s.run(ctx, req, flow{
		name:        "sign-in",
		throttled:   true,
		throttleKey: limiterIdentity(rawEmail),
		validate: func() (err error) {
			if email, err = validateEmail(rawEmail); err != nil {
				return err
			}
			return validatePassword(password)
		},
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			identity, err := s.identities.FindByEmail(ctx, email)
			if errors.Is(err, repository.ErrNotFound) {
				s.hasher.Compare("", password)
				return nil, invalidCredentials(nil)
			}
			if err != nil {
				return nil, s.storeError(err)
			}
			return identity, nil
		},
		verify: func(_ context.Context, identity *domain.Identity) error {
			hash := ""
			if identity.HasPassword() {
				hash = identity.PasswordHash
			}
			if !s.hasher.Compare(hash, password) {
				return invalidCredentials(nil)
			}
			if !identity.EmailConfirmed {
				return apperrors.NewPrecondition(ErrTypeEmailNotConfirmed, "Email not confirmed yet")
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// RequestSignInLink mails a sign-in link. An unknown email gets a new
// password-less identity and a confirmation link instead.
func (s *AuthService) RequestSignInLink(ctx context.Context, req Request, rawEmail string) (string, error) {
	email, err := validateEmail(rawEmail)
	if err != nil {
		return "", err
	}

	firstSignIn := false
	identity, err := s.identities.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		identity, err = s.identities.Create(ctx, email, "")
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// lost a race against a concurrent request for the same email
			identity, err = s.identities.FindByEmail(ctx, email)
		} else {
			firstSignIn = err == nil
		}
	}
	if err != nil {
		return "", s.storeError(err)
	}

	purpose := domain.PurposeSignInLink
	if firstSignIn {
		purpose = domain.PurposeEmailConfirmation
	}
	if err := s.sendMail(ctx, events.EventSignInLinkRequested, identity, identity.Email, purpose, "", firstSignIn); err != nil {
		return "", err
	}
	return "email", nil
}

// SignInWithLink signs the caller in with a sign-in link token, confirming
// the email when that has not happened yet.
func (s *AuthService) SignInWithLink(ctx context.Context, req Request, token string) (*domain.SessionData, error) {
	data, _, err := s.run(ctx, req, flow{
		name:     "sign-in-with-link",
		validate: func() error { return validateTokenShape(token) },
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			return s.identityFromToken(ctx, token, domain.PurposeSignInLink)
		},
		commit: s.confirmEmail,
	})
	return data, err
}

// InitiatePasswordReset mails a reset link. Unknown emails get the same
// answer without a mail.
func (s *AuthService) InitiatePasswordReset(ctx context.Context, req Request, rawEmail string) (string, error) {
	const message = "password reset initiated"

	email, err := validateEmail(rawEmail)
	if err != nil {
		return "", err
	}
	identity, err := s.identities.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("password reset for unknown email")
		return message, nil
	}
	if err != nil {
		return "", s.storeError(err)
	}
	if err := s.sendMail(ctx, events.EventPasswordResetRequested, identity, identity.Email, domain.PurposePasswordReset, "", false); err != nil {
		return "", err
	}
	return message, nil
}

// ResetPassword sets a new password from a reset token and signs the caller
// in.
func (s *AuthService) ResetPassword(ctx context.Context, req Request, token, password string) (*domain.SessionData, error) {
	data, _, err := s.run(ctx, req, flow{
		name: "reset-password",
		validate: func() error {
			if err := validateTokenShape(token); err != nil {
				return err
			}
			return validatePassword(password)
		},
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			return s.identityFromToken(ctx, token, domain.PurposePasswordReset)
		},
		commit: func(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
			return s.setPassword(ctx, identity.ID, password)
		},
	})
	return data, err
}

// ConfirmEmailChange moves the token's subject to the new address carried
// by the token.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, req Request, token string) (*domain.SessionData, error) {
	var newEmail string
	data, _, err := s.run(ctx, req, flow{
		name:     "confirm-email-change",
		validate: func() error { return validateTokenShape(token) },
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			claims, err := s.tokens.Verify(token, domain.PurposeEmailChange)
			if err != nil {
				return nil, tokenInvalid(err)
			}
			if newEmail, err = validateEmail(claims.Auxiliary); err != nil {
				return nil, tokenInvalid(err)
			}
			return s.findByID(ctx, claims.SubjectID)
		},
		commit: func(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
			updated, err := s.identities.SetEmail(ctx, identity.ID, newEmail)
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return nil, apperrors.NewConflict(ErrTypeEmailAlreadyUsed, "This email address is already associated with another account")
			}
			if err != nil {
				return nil, s.storeError(err)
			}
			return updated, nil
		},
	})
	return data, err
}

// SignOut destroys the caller's session.
func (s *AuthService) SignOut(ctx context.Context, req Request) error {
	if err := req.Session.Destroy(ctx); err != nil {
		return apperrors.NewInfrastructure(ErrTypeSessionSave, "The session could not be destroyed", err)
	}
	return nil
}

func (s *AuthService) confirmEmail(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
	if identity.EmailConfirmed {
		return identity, nil
	}
	updated, err := s.identities.MarkEmailConfirmed(ctx, identity.ID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return updated, nil
}

func (s *AuthService) setPassword(ctx context.Context, id, password string) (*domain.Identity, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInfrastructure(ErrTypePasswordHash, "The password could not be hashed", err)
	}
	updated, err := s.identities.UpdateCredential(ctx, id, hash)
	if err != nil {
		return nil, s.storeError(err)
	}
	return updated, nil
}

func (s *AuthService) identityFromToken(ctx context.Context, token string, purpose domain.TokenPurpose) (*domain.Identity, error) {
	claims, err := s.tokens.Verify(token, purpose)
	if err != nil {
		return nil, tokenInvalid(err)
	}
	return s.findByID(ctx, claims.SubjectID)
}

func (s *AuthService) findByID(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return identity, nil
}

func (s *AuthService) issue(subjectID string, purpose domain.TokenPurpose, aux string) (string, error) {
	token, err := s.tokens.Issue(subjectID, purpose, s.tokenTTL, aux)
	if err != nil {
		return "", apperrors.NewInfrastructure(ErrTypeTokenIssue, "A token could not be issued", err)
	}
	return token, nil
}

// sendMail issues a token and publishes the mail event. Delivery failures
// are reported by the dispatcher and never roll back the token.
func (s *AuthService) sendMail(ctx context.Context, eventType events.EventType, identity *domain.Identity,
	recipient string, purpose domain.TokenPurpose, aux string, firstSignIn bool) error {
	token, err := s.issue(identity.ID, purpose, aux)
	if err != nil {
		return err
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: identity.ID,
		Timestamp: s.now(),
		Payload: events.MailPayload{
			Recipient:   recipient,
			Token:       token,
			Purpose:     purpose,
			FirstSignIn: firstSignIn,
		},
	}
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("mail event not published",
			zap.String("event_type", string(eventType)),
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}
	return nil
}

func (s *AuthService) saveSession(ctx context.Context, req Request, data *domain.SessionData) error {
	if req.Session == nil {
		return nil
	}
	if err := req.Session.Save(ctx, data); err != nil {
		return apperrors.NewInfrastructure(ErrTypeSessionSave, "Could not provide session data", err)
	}
	return nil
}

func (s *AuthService) storeError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(ErrTypeUserNotFound, "User not found")
	}
	return apperrors.NewInfrastructure(ErrTypeDatabase, "The user store is unavailable", err)
}

func invalidCredentials(cause error) error {
	return apperrors.NewCredentialInvalid(ErrTypeInvalidCredentials, "Invalid user credentials", cause)
}

func tokenInvalid(cause error) error {
	return apperrors.NewCredentialInvalid(ErrTypeTokenInvalid, "Jwt could not be verified", cause)
}

// limiterIdentity is the identity half of the limiter key. It is derived
// from the raw input so malformed attempts are counted too.
func limiterIdentity(raw string) string {
	email := normalizeEmail(raw)
	if len(email) > maxEmailLength {
		email = email[:maxEmailLength]
	}
	return email
}
