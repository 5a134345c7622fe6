package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const principalKey = "auth_principal"

// SessionMiddleware loads the signed-in identity from the session.
type SessionMiddleware struct {
	sessions *Sessions
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(sessions *Sessions) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// Handle enforces a signed-in session for protected routes.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	data, err := m.sessions.Load(c)
	if err != nil {
		return apperrors.NewInfrastructure("/errors/app/session/unavailable", "The session could not be loaded", err)
	}
	if data == nil {
		return apperrors.NewUnauthenticated("/errors/user/auth/not-signed-in", "No user is signed in")
	}

	c.Locals(principalKey, data)
	return c.Next()
}

// PrincipalFromContext retrieves the signed-in session data.
func PrincipalFromContext(c *fiber.Ctx) (*domain.SessionData, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.SessionData)
	return principal, ok
}
