// Package middleware provides the authentication and authorization
// middleware for the fiber app.
package middleware

import (
	"strings"

	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/utils"
	"walletledger/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthMiddleware validates bearer tokens and stores the caller's
// models.Principal in the request locals.
type AuthMiddleware struct {
	secret string
	users  repositories.UserStore
	logger *zap.Logger
}

func NewAuthMiddleware(secret string, users repositories.UserStore, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{secret: secret, users: users, logger: logger}
}

// Handler checks for:
// - a Bearer token in the Authorization header
// - a valid signature and expiry
// - a user that still exists and is active
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return response.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ParseToken(m.secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		m.logger.Debug("token rejected", zap.Error(err), zap.String("ip", c.IP()))
		return response.Error(c, fiber.StatusUnauthorized, "invalid token")
	}

	if m.users != nil {
		user, err := m.users.GetUserByID(c.UserContext(), claims.UserID)
		if err != nil {
			m.logger.Warn("token for unknown user", zap.String("user_id", claims.UserID.String()))
			return response.Error(c, fiber.StatusUnauthorized, "invalid token")
		}
		if user.Status != "" && user.Status != models.UserStatusActive {
			return response.Error(c, fiber.StatusForbidden, "account is not active")
		}
	}

	c.Locals(utils.PrincipalKey, claims.Principal())
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
// Admins pass every check.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := utils.GetPrincipal(c)
		if err != nil {
			return response.Unauthorized(c)
		}
		if !p.Can(permission) {
			return response.Forbidden(c)
		}
		return c.Next()
	}
}

// StaffOnly admits approvers and admins.
func StaffOnly(c *fiber.Ctx) error {
	p, err := utils.GetPrincipal(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if p.Role != models.RoleAdmin && p.Role != models.RoleApprover {
		return response.Forbidden(c)
	}
	return c.Next()
}
