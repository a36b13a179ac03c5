package httpapi

import (
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	Token       string `json:"token"`
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

// token prefers resetToken; token is accepted for older clients.
func (r resetPasswordRequest) token() string {
	if r.ResetToken != "" {
		return r.ResetToken
	}
	return r.Token
}

var errBadBody = fmt.Errorf("%w: invalid request body", common.ErrValidation)

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.svc.Health(userContext(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{Message: "Authentication API is operational", Success: true})
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var body registerRequest
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, errBadBody)
	}
	profile, err := h.svc.Register(userContext(c), body.Name, body.Email, body.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(response{
		Message: "User registered successfully",
		Success: true,
		Data:    profile,
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var body loginRequest
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, errBadBody)
	}
	res, err := h.svc.Login(userContext(c), body.Email, body.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{
		Message: "Login successful",
		Success: true,
		Data:    res.Profile,
		Token:   res.Token,
	})
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var body forgotPasswordRequest
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, errBadBody)
	}
	if err := h.svc.ForgotPassword(userContext(c), body.Email); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{Message: "If this email exists, a reset link has been sent", Success: true})
}

func (h *Handler) ValidateResetToken(c *fiber.Ctx) error {
	valid, err := h.svc.ValidateResetToken(userContext(c), c.Query("email"), c.Params("resetToken"))
	if err != nil {
		status, msg := classify(err)
		return c.Status(status).JSON(validResponse{Valid: false, Message: msg})
	}
	if !valid {
		return c.Status(fiber.StatusUnauthorized).JSON(validResponse{Valid: false, Message: common.ErrInvalidOrExpiredToken.Error()})
	}
	return c.JSON(validResponse{Valid: true, Message: "Token is valid"})
}

func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var body resetPasswordRequest
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, errBadBody)
	}
	if err := h.svc.ResetPassword(userContext(c), body.Email, body.token(), body.NewPassword); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{Message: "Password has been reset successfully", Success: true})
}

func (h *Handler) Profile(c *fiber.Ctx) error {
	profile, err := h.svc.Profile(userContext(c), currentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{Message: "User found", Success: true, Data: profile})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(userContext(c), currentUserID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(response{Message: "Logged out successfully", Success: true})
}
