package domain

import "time"

// Gender values accepted on a profile.
type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderDiverse Gender = "DIVERSE"
)

// Valid reports whether g is one of the known genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderDiverse:
		return true
	}
	return false
}

// Identity is the registered user record.
type Identity struct {
	ID              string
	Email           string
	PasswordHash    string
	PasswordEnabled bool
	EmailConfirmed  bool
	FirstName       *string
	LastName        *string
	YearOfBirth     *int
	Gender          *Gender
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether password sign-in can be attempted.
func (i *Identity) HasPassword() bool {
	return i.PasswordEnabled && i.PasswordHash != ""
}

// ProfileExists reports whether any optional profile field was filled in.
func (i *Identity) ProfileExists() bool {
	return i.FirstName != nil || i.LastName != nil || i.YearOfBirth != nil || i.Gender != nil
}

// Profile carries the optional fields of an identity.
type Profile struct {
	FirstName   *string
	LastName    *string
	YearOfBirth *int
	Gender      *Gender
}
