package domain

// TokenPurpose scopes a signed token to one flow.
type TokenPurpose string

const (
	PurposeEmailConfirmation  TokenPurpose = "email-confirmation"
	PurposeResendConfirmation TokenPurpose = "resend-confirmation"
	PurposeSignInLink         TokenPurpose = "sign-in-link"
	PurposePasswordReset      TokenPurpose = "password-reset"
	PurposeEmailChange        TokenPurpose = "email-change"
)

// TokenClaims are the verified contents of a signed token.
type TokenClaims struct {
	SubjectID string
	Purpose   TokenPurpose
	// Auxiliary is only set for email-change tokens, where it holds the new address.
	Auxiliary string
}
