/**
 * @description
 * Token Service for reading wager-token balances from the chain.
 * Handles ERC20 balanceOf calls with caching and backoff so a flaky RPC
 * endpoint never stalls the API.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum
 * - backend/internal/config
 * - backend/internal/logger
 */

package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/logger"
)

const (
	// Native USDC on Polygon; the default wager token when none is configured.
	DefaultTokenAddress = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"

	balanceCacheTTL        = 30 * time.Second
	balanceStaleFallback   = 5 * time.Minute
	balanceAttemptCooldown = 15 * time.Second
)

// ERC20 ABI for balanceOf function
const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

type TokenService struct {
	client       *ethclient.Client
	tokenAddress common.Address
	cacheMu      sync.Mutex
	balanceCache map[string]cachedBalance
}

type cachedBalance struct {
	value       *big.Int
	expiresAt   time.Time
	lastAttempt time.Time
	lastErrorAt time.Time
}

func NewTokenService(cfg *config.Config) (*TokenService, error) {
	rpcURL := strings.TrimSpace(cfg.Chain.RPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("chain RPC endpoint is required")
	}

	tokenAddr := strings.TrimSpace(cfg.Chain.TokenAddress)
	if tokenAddr == "" {
		tokenAddr = DefaultTokenAddress
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	return &TokenService{
		client:       client,
		tokenAddress: common.HexToAddress(tokenAddr),
		balanceCache: make(map[string]cachedBalance),
	}, nil
}

// Balance returns the wager-token balance for a given address
func (s *TokenService) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}

	cacheKey := strings.ToLower(addr.Hex())
	if cached := s.getCachedBalance(cacheKey, false); cached != nil {
		return cached, nil
	}

	if s.shouldBackoff(cacheKey) {
		if cached := s.getCachedBalance(cacheKey, true); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("balance fetch throttled")
	}

	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	callMsg := ethereum.CallMsg{
		To:   &s.tokenAddress,
		Data: data,
	}

	s.markAttempt(cacheKey)

	result, err := s.client.CallContract(ctx, callMsg, nil)
	if err != nil {
		s.markError(cacheKey)
		if cached := s.getCachedBalance(cacheKey, true); cached != nil {
			logger.Error("Balance fetch failed for %s, serving stale value: %v", address, err)
			return cached, nil
		}
		return nil, fmt.Errorf("balance call failed: %w", err)
	}

	var balance *big.Int
	if err := parsedABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		s.markError(cacheKey)
		return nil, fmt.Errorf("failed to unpack balance: %w", err)
	}

	s.storeBalance(cacheKey, balance)
	return balance, nil
}

func (s *TokenService) getCachedBalance(key string, allowStale bool) *big.Int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cached, ok := s.balanceCache[key]
	if !ok || cached.value == nil {
		return nil
	}
	if time.Now().Before(cached.expiresAt) {
		return new(big.Int).Set(cached.value)
	}
	if allowStale && time.Since(cached.expiresAt) < balanceStaleFallback {
		return new(big.Int).Set(cached.value)
	}
	return nil
}

func (s *TokenService) shouldBackoff(key string) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cached, ok := s.balanceCache[key]
	if !ok {
		return false
	}
	if cached.lastErrorAt.IsZero() {
		return false
	}
	return time.Since(cached.lastAttempt) < balanceAttemptCooldown
}

func (s *TokenService) markAttempt(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cached := s.balanceCache[key]
	cached.lastAttempt = time.Now()
	s.balanceCache[key] = cached
}

func (s *TokenService) markError(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cached := s.balanceCache[key]
	cached.lastErrorAt = time.Now()
	s.balanceCache[key] = cached
}

func (s *TokenService) storeBalance(key string, balance *big.Int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.balanceCache[key] = cachedBalance{
		value:       new(big.Int).Set(balance),
		expiresAt:   time.Now().Add(balanceCacheTTL),
		lastAttempt: time.Now(),
	}
}
