/**
 * @description
 * Authentication middleware for session JWTs.
 * Validates Bearer tokens minted by the wallet login flow (HS256), and can
 * additionally validate externally issued tokens against a JWKS endpoint
 * when one is configured.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - github.com/golang-jwt/jwt/v5: JWT parsing
 * - github.com/MicahParks/keyfunc/v2: JWKS fetching and caching
 *
 * @notes
 * - Requires JWT_SECRET to be set in configuration.
 * - Caches JWKS keys to prevent excessive network calls.
 */

package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/logger"
)

// AuthMiddlewareConfig holds the verification material
type AuthMiddlewareConfig struct {
	Secret []byte
	JWKS   *keyfunc.JWKS
}

var mwConfig *AuthMiddlewareConfig

// InitAuthMiddleware initializes token verification. Should be called at startup.
func InitAuthMiddleware(cfg *config.Config) error {
	mwConfig = &AuthMiddlewareConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
	}

	if len(mwConfig.Secret) == 0 {
		logger.Info("⚠️ Warning: JWT_SECRET is empty. Auth validation will fail if not mocked.")
	}

	if cfg.Auth.JWKSURL != "" {
		// Refresh the JWKS every hour.
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.Error("There was an error with the JWKS refresh: %v", err)
			},
		})
		if err != nil {
			return err
		}
		mwConfig.JWKS = jwks
		logger.Info("✅ Auth Middleware initialized with JWKS")
	}

	return nil
}

// resolveKey picks the verification key based on the token's signing method:
// HS256 tokens come from our own wallet login; anything else goes to JWKS.
func resolveKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(mwConfig.Secret) == 0 {
			return nil, errors.New("local token secret not configured")
		}
		return mwConfig.Secret, nil
	}
	if mwConfig.JWKS != nil {
		return mwConfig.JWKS.Keyfunc(token)
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// Protected protects routes requiring authentication
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if mwConfig == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Auth configuration not initialized",
			})
		}

		// 1. Get Token from Header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		// 2. Parse and Validate Token
		token, err := jwt.Parse(tokenString, resolveKey)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token: " + err.Error()})
		}
		if !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
		}

		// 3. Extract wallet address (sub)
		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing subject"})
		}
		if !common.IsHexAddress(sub) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token subject is not a wallet address"})
		}

		// 4. Set address in context
		c.Locals("wallet_address", strings.ToLower(sub))

		return c.Next()
	}
}

// GetAddress returns the authenticated wallet address from context
func GetAddress(c *fiber.Ctx) (string, error) {
	addr, ok := c.Locals("wallet_address").(string)
	if !ok || addr == "" {
		return "", errors.New("wallet address not found in context")
	}
	return addr, nil
}
