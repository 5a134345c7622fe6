package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

// Flows below act on the signed-in identity. The principal is the session
// data of the caller; the authoritative record is always re-read.

// ChangePassword replaces the password after proving the current one. It
// is throttled like password sign-in. An identity without a stored password
// sets its first one here.
func (s *AuthService) ChangePassword(ctx context.Context, req Request, principal *domain.SessionData, oldPassword, newPassword string) (*domain.SessionData, error) {
	data, _, err := s.run(ctx, req, flow{
		name:        "change-password",
		throttled:   true,
		throttleKey: limiterIdentity(principal.Email),
		validate: func() error {
			if err := validatePassword(oldPassword); err != nil {
				return err
			}
			return validatePassword(newPassword)
		},
		resolve: func(ctx context.Context) (*domain.Identity, error) {
			return s.findByID(ctx, principal.UserID)
		},
		verify: func(_ context.Context, identity *domain.Identity) error {
			if identity.PasswordHash == "" {
				return nil
			}
			if !s.hasher.Compare(identity.PasswordHash, oldPassword) {
				return apperrors.NewCredentialInvalid(ErrTypeCurrentPasswordWrong, "Invalid user credentials", nil)
			}
			return nil
		},
		commit: func(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
			return s.setPassword(ctx, identity.ID, newPassword)
		},
	})
	return data, err
}

// EnablePasswordAuth stores a new password and turns password sign-in on.
func (s *AuthService) EnablePasswordAuth(ctx context.Context, req Request, principal *domain.SessionData, password string) (bool, error) {
	if err := validatePassword(password); err != nil {
		return false, err
	}
	identity, err := s.setPassword(ctx, principal.UserID, password)
	if err != nil {
		return false, err
	}
	if err := s.saveSession(ctx, req, domain.NewSessionData(identity)); err != nil {
		return false, err
	}
	return identity.PasswordEnabled, nil
}

// DisablePasswordAuth turns password sign-in off. The stored hash is kept.
func (s *AuthService) DisablePasswordAuth(ctx context.Context, req Request, principal *domain.SessionData) (bool, error) {
	identity, err := s.identities.SetPasswordEnabled(ctx, principal.UserID, false)
	if err != nil {
		return false, s.storeError(err)
	}
	if err := s.saveSession(ctx, req, domain.NewSessionData(identity)); err != nil {
		return false, err
	}
	return identity.PasswordEnabled, nil
}

// InitiateEmailChange mails a confirmation link to the new address.
func (s *AuthService) InitiateEmailChange(ctx context.Context, req Request, principal *domain.SessionData, rawNewEmail string) (string, error) {
	newEmail, err := validateEmail(rawNewEmail)
	if err != nil {
		return "", err
	}

	_, err = s.identities.FindByEmail(ctx, newEmail)
	switch {
	case err == nil:
		return "", apperrors.NewConflict(ErrTypeEmailAlreadyUsed, "This email address is already associated with another account")
	case !errors.Is(err, repository.ErrNotFound):
		return "", s.storeError(err)
	}

	identity, err := s.findByID(ctx, principal.UserID)
	if err != nil {
		return "", err
	}
	if err := s.sendMail(ctx, events.EventEmailChangeRequested, identity, newEmail, domain.PurposeEmailChange, newEmail, false); err != nil {
		return "", err
	}
	return "The verification email was sent", nil
}

// DeleteResult is returned by DeleteAccount.
type DeleteResult struct {
	Email   string
	Deleted bool
}

// DeleteAccount removes the signed-in identity. The entered email must
// match the caller's own address.
func (s *AuthService) DeleteAccount(ctx context.Context, req Request, principal *domain.SessionData, enteredEmail string) (*DeleteResult, error) {
	email, err := validateEmail(enteredEmail)
	if err != nil {
		return nil, err
	}
	if email != normalizeEmail(principal.Email) {
		return nil, apperrors.NewCredentialInvalid(ErrTypeDeleteEmailMismatch, "The entered email does not match the signed in user", nil)
	}

	identity, err := s.findByID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.identities.Delete(ctx, identity.ID)
	if err != nil {
		return nil, apperrors.NewInfrastructure("/errors/user/deleting-user-failed", "The user could not be deleted", err)
	}
	if req.Session != nil {
		if err := req.Session.Destroy(ctx); err != nil {
			s.logger.Warn("session not destroyed after account deletion",
				zap.String("identity_id", identity.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("identity deleted", zap.String("identity_id", identity.ID), zap.Bool("deleted", deleted))
	return &DeleteResult{Email: identity.Email, Deleted: deleted}, nil
}

// UpdateProfile replaces the optional profile fields and refreshes the
// session.
func (s *AuthService) UpdateProfile(ctx context.Context, req Request, principal *domain.SessionData, in ProfileInput) (*domain.SessionData, error) {
	profile, err := validateProfile(in, s.now())
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.UpdateProfile(ctx, principal.UserID, profile)
	if err != nil {
		return nil, s.storeError(err)
	}
	data := domain.NewSessionData(identity)
	if err := s.saveSession(ctx, req, data); err != nil {
		return nil, err
	}
	return data, nil
}
