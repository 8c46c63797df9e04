package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserClaims is the JWT payload issued by the identity service.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Principal converts verified claims into the value passed to the ledger.
func (c *UserClaims) Principal() Principal {
	perms := c.Permissions
	if len(perms) == 0 {
		perms = GetDefaultPermissions(c.Role)
	}
	return Principal{
		UserID:      c.UserID,
		Name:        c.Email,
		Role:        c.Role,
		Permissions: perms,
	}
}

// Principal is the authenticated actor of a ledger call. System principals
// represent background jobs and provider callbacks.
type Principal struct {
	UserID      uuid.UUID
	Name        string
	Role        string
	Permissions []string
	System      bool
}

// SystemPrincipal returns the actor used by internal jobs.
func SystemPrincipal(name string) Principal {
	return Principal{Name: name, Role: "system", System: true}
}

func (p Principal) Can(permission string) bool {
	if p.System || p.Role == RoleAdmin {
		return true
	}
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// Owns reports whether p may move money out of w.
func (p Principal) Owns(w *Wallet) bool {
	return p.System || (p.UserID != uuid.Nil && w.OwnerID == p.UserID)
}

// ActorID is the id recorded in audit fields. System principals have none.
func (p Principal) ActorID() *uuid.UUID {
	if p.System || p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}
