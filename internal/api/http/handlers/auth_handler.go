package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const ErrTypeInvalidPayload = "/errors/app/request/invalid-payload"

// AuthHandler exposes the account and sign-in endpoints.
type AuthHandler struct {
	auth       *service.AuthService
	sessions   *auth.Sessions
	cookieName string
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, sessions *auth.Sessions, cookieName string) *AuthHandler {
	return &AuthHandler{auth: authService, sessions: sessions, cookieName: cookieName}
}

func (h *AuthHandler) request(c *fiber.Ctx) service.Request {
	return service.Request{SourceAddr: c.IP(), Session: h.sessions.For(c)}
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError(ErrTypeInvalidPayload, "The request body could not be parsed", err)
	}
	return nil
}

func principal(c *fiber.Ctx) (*domain.SessionData, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthenticated("/errors/user/auth/not-signed-in", "No user is signed in")
	}
	return p, nil
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.CredentialsRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Register(c.UserContext(), h.request(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.SignUpResponse{ResendToken: res.ResendToken, ExistsAlready: res.ExistsAlready})
}

// Resend handles POST /api/auth/resend.
func (h *AuthHandler) Resend(c *fiber.Ctx) error {
	var req dto.ResendRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.ResendConfirmation(c.UserContext(), h.request(c), req.ResendToken)
	if err != nil {
		return err
	}
	return c.SendString(msg)
}

// Confirm handles POST /api/auth/confirm.
func (h *AuthHandler) Confirm(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	res, err := h.auth.ConfirmAndSignIn(c.UserContext(), h.request(c), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(dto.ConfirmResponse{SessionData: res.Session, ProfileExistsAlready: res.ProfileExistsAlready})
}

// SignIn handles POST /api/auth/sign-in.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.CredentialsRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.SignInWithPassword(c.UserContext(), h.request(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// GetSignInLink handles POST /api/auth/get-sign-in-link.
func (h *AuthHandler) GetSignInLink(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.RequestSignInLink(c.UserContext(), h.request(c), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

// SignInWithLink handles POST /api/auth/sign-in-with-link.
func (h *AuthHandler) SignInWithLink(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.SignInWithLink(c.UserContext(), h.request(c), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// GetSession handles GET /api/auth/get-session. An empty session is
// destroyed so no cookie lingers for anonymous callers.
func (h *AuthHandler) GetSession(c *fiber.Ctx) error {
	data, err := h.sessions.Load(c)
	if err != nil {
		return apperrors.NewInfrastructure("/errors/app/session/unavailable", "The session could not be loaded", err)
	}
	if data == nil {
		if err := h.sessions.For(c).Destroy(c.UserContext()); err != nil {
			return apperrors.NewInfrastructure("/errors/app/session/unavailable", "The session could not be loaded", err)
		}
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// SignOut handles POST /api/auth/sign-out.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	if err := h.auth.SignOut(c.UserContext(), h.request(c)); err != nil {
		return err
	}
	c.ClearCookie(h.cookieName)
	return c.JSON(dto.MessageResponse{Message: "logged out"})
}

// InitiatePasswordReset handles POST /api/auth/initiate-password-reset.
func (h *AuthHandler) InitiatePasswordReset(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.InitiatePasswordReset(c.UserContext(), h.request(c), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.ResetPassword(c.UserContext(), h.request(c), req.Token, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// DisablePasswordSignIn handles POST /api/auth/disable-password-sign-in.
func (h *AuthHandler) DisablePasswordSignIn(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	enabled, err := h.auth.DisablePasswordAuth(c.UserContext(), h.request(c), p)
	if err != nil {
		return err
	}
	return c.JSON(enabled)
}

// EnablePasswordSignIn handles POST /api/auth/enable-password-sign-in.
func (h *AuthHandler) EnablePasswordSignIn(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.PasswordRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	enabled, err := h.auth.EnablePasswordAuth(c.UserContext(), h.request(c), p, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.PasswordSignInResponse{PwSignInEnabled: enabled})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.ChangePassword(c.UserContext(), h.request(c), p, req.OldPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// InitiateUpdateEmail handles POST /api/auth/initiate-update-email.
func (h *AuthHandler) InitiateUpdateEmail(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.NewEmailRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.InitiateEmailChange(c.UserContext(), h.request(c), p, req.NewEmail)
	if err != nil {
		return err
	}
	return c.SendString(msg)
}

// UpdateEmail handles POST /api/auth/update-email.
func (h *AuthHandler) UpdateEmail(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.ConfirmEmailChange(c.UserContext(), h.request(c), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// UpdateProfile handles POST /api/auth/update-profile.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	data, err := h.auth.UpdateProfile(c.UserContext(), h.request(c), p, service.ProfileInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		YearOfBirth: req.YearOfBirth,
		Gender:      req.Gender,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionResponse{SessionData: data})
}

// DeleteUser handles DELETE /api/auth/delete-user.
func (h *AuthHandler) DeleteUser(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.DeleteUserRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	res, err := h.auth.DeleteAccount(c.UserContext(), h.request(c), p, req.EnteredEmail)
	if err != nil {
		return err
	}
	c.ClearCookie(h.cookieName)
	return c.JSON(dto.DeleteUserResponse{Email: res.Email, Deleted: res.Deleted})
}
