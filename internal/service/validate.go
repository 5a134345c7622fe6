package service

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const (
	ErrTypeNotAnEmail       = "/user/validation/not-an-email"
	ErrTypeInvalidPassword  = "/user/validation/not-a-valid-password"
	ErrTypeNotAToken        = "/user/validation/not-a-jwt"
	ErrTypeInvalidBirthYear = "/user/validation/not-a-valid-birth-year"
	ErrTypeInvalidGender    = "/user/validation/gender-not-valid"
	ErrTypeInvalidName      = "/user/validation/not-a-valid-name"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
	maxEmailLength   = 254
	maxNameLength    = 100
	maxTokenLength   = 4096
	maxAge           = 125
)

// normalizeEmail lowercases and trims an address; it does not validate.
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", apperrors.NewValidationError(ErrTypeNotAnEmail, "No valid email-address was provided", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", apperrors.NewValidationError(ErrTypeNotAnEmail, "No valid email-address was provided", err)
	}
	return email, nil
}

func validatePassword(plain string) error {
	if utf8.RuneCountInString(plain) < minPasswordLength || len(plain) > maxPasswordBytes {
		return apperrors.NewValidationError(ErrTypeInvalidPassword, "No valid password was provided", nil)
	}
	return nil
}

// validateTokenShape checks for three non-empty dot separated segments.
func validateTokenShape(token string) error {
	if token == "" || len(token) > maxTokenLength {
		return apperrors.NewValidationError(ErrTypeNotAToken, "No valid JWT was provided", nil)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return apperrors.NewValidationError(ErrTypeNotAToken, "No valid JWT was provided", nil)
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\r\n+/=") {
			return apperrors.NewValidationError(ErrTypeNotAToken, "No valid JWT was provided", nil)
		}
	}
	return nil
}

// ProfileInput is the raw profile update. Nil fields clear the value.
type ProfileInput struct {
	FirstName   *string
	LastName    *string
	YearOfBirth *int
	Gender      *string
}

func validateProfile(in ProfileInput, now time.Time) (domain.Profile, error) {
	var profile domain.Profile

	for _, f := range []struct {
		in  *string
		out **string
	}{
		{in.FirstName, &profile.FirstName},
		{in.LastName, &profile.LastName},
	} {
		if f.in == nil {
			continue
		}
		name := strings.TrimSpace(*f.in)
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return domain.Profile{}, apperrors.NewValidationError(ErrTypeInvalidName, "No valid name was provided", nil)
		}
		*f.out = &name
	}

	if in.YearOfBirth != nil {
		year := *in.YearOfBirth
		if year < now.Year()-maxAge || year > now.Year() {
			return domain.Profile{}, apperrors.NewValidationError(ErrTypeInvalidBirthYear, "No valid year of birth was provided", nil)
		}
		profile.YearOfBirth = &year
	}

	if in.Gender != nil && *in.Gender != "" {
		gender := domain.Gender(*in.Gender)
		if !gender.Valid() {
			return domain.Profile{}, apperrors.NewValidationError(ErrTypeInvalidGender, "No valid gender was provided", nil)
		}
		profile.Gender = &gender
	}
	return profile, nil
}
