package services

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/logger"
)

// BalanceService caches computed display balances per user. The ledger engine
// and transfer machine invalidate through their change listeners, so reads
// between writes are served from memory.
type BalanceService struct {
	engine *ledger.Engine
	cache  *cache.Cache
}

func NewBalanceService(engine *ledger.Engine, ttl time.Duration) *BalanceService {
	return &BalanceService{
		engine: engine,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func balanceCacheKey(userID int64) string {
	return fmt.Sprintf("balances:%d", userID)
}

// AccountsWithBalance returns the user's accounts with display balances,
// from cache when fresh.
func (s *BalanceService) AccountsWithBalance(userID int64) ([]ledger.AccountWithBalance, error) {
	key := balanceCacheKey(userID)
	if cached, found := s.cache.Get(key); found {
		if accounts, ok := cached.([]ledger.AccountWithBalance); ok {
			logger.L.Debug("Balance cache hit", "userID", userID)
			return accounts, nil
		}
	}

	accounts, err := s.engine.AccountsWithBalance(userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, accounts, cache.DefaultExpiration)
	return accounts, nil
}

// TotalDisplayBalance sums display balances across the user's accounts.
func (s *BalanceService) TotalDisplayBalance(userID int64) (int64, error) {
	accounts, err := s.AccountsWithBalance(userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range accounts {
		total += a.DisplayBalance
	}
	return total, nil
}

// Invalidate drops the cached balances for one user. Wired as the change
// listener on the ledger engine and the transfer machine.
func (s *BalanceService) Invalidate(userID int64) {
	s.cache.Delete(balanceCacheKey(userID))
}
