package middleware

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
	localUserEmail = "user_email"
)

// IdentityConfig controls where the caller identity comes from.
type IdentityConfig struct {
	// JWTSecret enables HS256 session tokens.
	JWTSecret string
	// GatewayEnforced means every request passed the gateway token check, so
	// its X-User-* headers are trusted. Authorization then carries the gateway
	// token and session tokens are only read from X-Session-Token.
	GatewayEnforced bool
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserContextMiddleware extracts the caller identity set by the Gateway
// (X-User-ID, X-User-Roles) or carried in a session token. Gateway headers
// are ignored unless the gateway token is enforced.
// It never rejects; use RequireUser / RequireRoles on protected routes.
func UserContextMiddleware(cfg IdentityConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			userID, email string
			roles         []string
		)
		if cfg.GatewayEnforced {
			userID = strings.TrimSpace(c.Get("X-User-ID"))
			roles = splitRoles(c.Get("X-User-Roles"))
			email = strings.TrimSpace(c.Get("X-User-Email"))
		} else if c.Get("X-User-ID") != "" {
			log.Printf("⚠️  [USER_CTX] ignoring X-User-* headers on %s, gateway not enforced", c.Path())
		}

		if userID == "" && cfg.JWTSecret != "" {
			if raw := sessionToken(c, cfg.GatewayEnforced); raw != "" {
				claims, err := ParseSessionToken(raw, cfg.JWTSecret)
				if err != nil {
					log.Printf("❌ [USER_CTX] rejected session token on %s: %v", c.Path(), err)
					return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid session token"})
				}
				userID = claims.Subject
				email = claims.Email
				if claims.Role != "" {
					roles = append(roles, claims.Role)
				}
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, roles)
		c.Locals(localUserEmail, email)
		return c.Next()
	}
}

// ParseSessionToken verifies an HS256 session token and returns its claims.
func ParseSessionToken(raw, secret string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func sessionToken(c *fiber.Ctx, gatewayEnforced bool) string {
	if t := strings.TrimSpace(c.Get("X-Session-Token")); t != "" {
		return t
	}
	if gatewayEnforced {
		return ""
	}
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// ProfileRoleMiddleware merges the stored participant role into the caller's
// roles and blocks suspended accounts. Staff roles live on the profile, not
// in the identity provider.
func ProfileRoleMiddleware(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == "" {
			return c.Next()
		}

		var p models.Participant
		err := db.WithContext(c.UserContext()).Select("id", "role", "is_blocked").Where("id = ?", userID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Next()
		}
		if err != nil {
			log.Printf("❌ [USER_CTX] role lookup failed for %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load profile"})
		}
		if p.IsBlocked {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account is blocked"})
		}

		roles := Roles(c)
		if p.Role != "" && !slices.Contains(roles, p.Role) {
			roles = append(roles, p.Role)
			c.Locals(localUserRoles, roles)
		}
		return c.Next()
	}
}

// RequireUser rejects anonymous callers.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}
		return c.Next()
	}
}

// RequireRoles lets through callers holding at least one of roles.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}
		if !HasRole(c, roles...) {
			log.Printf("🚫 [USER_CTX] %s lacks %v for %s", UserID(c), roles, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fmt.Sprintf("requires one of roles: %s", strings.Join(roles, ", ")),
			})
		}
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func UserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(localUserEmail).(string)
	return email
}

func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localUserRoles).([]string)
	return roles
}

func HasRole(c *fiber.Ctx, roles ...string) bool {
	for _, have := range Roles(c) {
		if slices.Contains(roles, have) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the caller may see private competition data.
func IsStaff(c *fiber.Ctx) bool {
	return HasRole(c, models.RoleAdmin, models.RoleManager)
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
