package domain

// SessionData is the server-side session view of an identity.
type SessionData struct {
	UserID          string  `json:"userId"`
	Email           string  `json:"email"`
	PwSignInEnabled bool    `json:"pwSignInEnabled"`
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	YearOfBirth     *int    `json:"yearOfBirth"`
	Gender          *Gender `json:"gender"`
}

// NewSessionData derives session data from the identity record.
func NewSessionData(identity *Identity) *SessionData {
	return &SessionData{
		UserID:          identity.ID,
		Email:           identity.Email,
		PwSignInEnabled: identity.PasswordEnabled,
		FirstName:       identity.FirstName,
		LastName:        identity.LastName,
		YearOfBirth:     identity.YearOfBirth,
		Gender:          identity.Gender,
	}
}
