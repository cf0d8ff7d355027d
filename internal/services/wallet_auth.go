/**
 * @description
 * Wallet Authentication Service.
 * Implements signature login: issue a one-time nonce, verify the wallet's
 * personal-sign signature over it, upsert the user profile, and mint a
 * session JWT. The recovered address is the opaque verified identity the
 * ledger snapshots into every mutation.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum (accounts, common, crypto)
 * - github.com/golang-jwt/jwt/v5
 * - github.com/redis/go-redis/v9 (nonce store)
 * - gorm.io/gorm
 */

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/ledger"
	"github.com/prophecy-market/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const nonceKeyPrefix = "auth:nonce:"

var (
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrNonceExpired     = errors.New("nonce expired or unknown")
	ErrBadSignature     = errors.New("signature does not match address")
	ErrAuthNotConfigured = errors.New("auth secret not configured")
)

type WalletAuthService struct {
	DB       *gorm.DB
	Redis    *redis.Client
	secret   []byte
	tokenTTL time.Duration
	nonceTTL time.Duration
}

func NewWalletAuthService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *WalletAuthService {
	return &WalletAuthService{
		DB:       db,
		Redis:    rdb,
		secret:   []byte(cfg.Auth.JWTSecret),
		tokenTTL: cfg.Auth.TokenTTL,
		nonceTTL: cfg.Auth.NonceTTL,
	}
}

// IssueNonce stores a fresh one-time nonce for the address and returns the
// exact message the wallet must sign.
func (s *WalletAuthService) IssueNonce(ctx context.Context, address string) (nonce, message string, err error) {
	if !common.IsHexAddress(address) {
		return "", "", ErrInvalidAddress
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce = hex.EncodeToString(buf)

	key := nonceKey(address)
	if err := s.Redis.Set(ctx, key, nonce, s.nonceTTL).Err(); err != nil {
		return "", "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return nonce, LoginMessage(address, nonce), nil
}

// LoginMessage is the canonical personal-sign payload for wallet login.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to Prophecy\n\nAddress: %s\nNonce: %s", strings.ToLower(address), nonce)
}

// Verify checks the signature over the stored nonce, consumes the nonce,
// upserts the user row, and returns a session token plus the profile.
func (s *WalletAuthService) Verify(ctx context.Context, address, signature string) (string, *models.User, error) {
	if len(s.secret) == 0 {
		return "", nil, ErrAuthNotConfigured
	}
	if !common.IsHexAddress(address) {
		return "", nil, ErrInvalidAddress
	}

	// One-time use: fetch and delete atomically.
	nonce, err := s.Redis.GetDel(ctx, nonceKey(address)).Result()
	if err == redis.Nil {
		return "", nil, ErrNonceExpired
	} else if err != nil {
		return "", nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	recovered, err := recoverSigner(LoginMessage(address, nonce), signature)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !strings.EqualFold(recovered.Hex(), address) {
		return "", nil, ErrBadSignature
	}

	user, err := s.upsertUser(ctx, address)
	if err != nil {
		return "", nil, err
	}

	token, err := s.mintToken(address)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// recoverSigner recovers the address that personal-signed message.
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// Wallets return V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (s *WalletAuthService) mintToken(address string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strings.ToLower(address),
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *WalletAuthService) upsertUser(ctx context.Context, address string) (*models.User, error) {
	normalized := strings.ToLower(address)
	user := models.User{Address: normalized}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now()}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	var out models.User
	if err := s.DB.WithContext(ctx).Where("address = ?", normalized).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the live profile for an address.
func (s *WalletAuthService) Profile(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("address = ?", strings.ToLower(address)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile sets display name and avatar for an address.
func (s *WalletAuthService) UpdateProfile(ctx context.Context, address, displayName, avatarURL string) (*models.User, error) {
	normalized := strings.ToLower(address)
	updates := map[string]interface{}{
		"display_name": strings.TrimSpace(displayName),
		"avatar_url":   strings.TrimSpace(avatarURL),
		"updated_at":   time.Now(),
	}
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("address = ?", normalized).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, normalized)
}

// IdentityFor builds the snapshot identity the ledger captures for an
// authenticated address. Falls back to an address-only identity when no
// profile row exists yet.
func (s *WalletAuthService) IdentityFor(ctx context.Context, address string) *ledger.Identity {
	id := &ledger.Identity{Address: strings.ToLower(address)}
	if s.DB == nil {
		return id
	}
	user, err := s.Profile(ctx, address)
	if err == nil {
		id.DisplayName = user.DisplayName
		id.AvatarURL = user.AvatarURL
	}
	return id
}

func nonceKey(address string) string {
	return nonceKeyPrefix + strings.ToLower(address)
}
