package dto

import "github.com/spec-kit/auth-service/internal/domain"

// CredentialsRequest is used by sign-up and password sign-in.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest carries a bare email address.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResendRequest carries the token returned by sign-up.
type ResendRequest struct {
	ResendToken string `json:"resendToken"`
}

// TokenRequest carries a token delivered by mail.
type TokenRequest struct {
	Token string `json:"token"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// PasswordRequest carries a single new password.
type PasswordRequest struct {
	Password string `json:"password"`
}

// ChangePasswordRequest proves the current password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// NewEmailRequest starts an email change.
type NewEmailRequest struct {
	NewEmail string `json:"newEmail"`
}

// DeleteUserRequest confirms account deletion.
type DeleteUserRequest struct {
	EnteredEmail string `json:"enteredEmail"`
}

// UpdateProfileRequest replaces the optional profile fields.
type UpdateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	YearOfBirth *int    `json:"yearOfBirth"`
	Gender      *string `json:"gender"`
}

// SignUpResponse is returned by sign-up.
type SignUpResponse struct {
	ResendToken   string `json:"resendToken"`
	ExistsAlready bool   `json:"existsAlready"`
}

// SessionResponse wraps the session data of the signed-in identity.
type SessionResponse struct {
	SessionData *domain.SessionData `json:"sessionData"`
}

// ConfirmResponse is returned after the email confirmation.
type ConfirmResponse struct {
	SessionData          *domain.SessionData `json:"sessionData"`
	ProfileExistsAlready bool                `json:"profileExistsAlready"`
}

// MessageResponse carries a human readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// PasswordSignInResponse reports whether password sign-in is enabled.
type PasswordSignInResponse struct {
	PwSignInEnabled bool `json:"pwSignInEnabled"`
}

// DeleteUserResponse is returned after account deletion.
type DeleteUserResponse struct {
	Email   string `json:"email"`
	Deleted bool   `json:"deleted"`
}
