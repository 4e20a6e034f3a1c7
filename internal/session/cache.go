// Package session caches per-wallet signing sessions so the private key is
// decrypted once per wallet instead of once per bet.
package session

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/slot-automator/internal/contract"
	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/types"
)

// Session is a wallet key bound to the slot contract. It lives in memory only.
type Session struct {
	WalletID string
	Address  common.Address
	Key      *ecdsa.PrivateKey
	ChainID  *big.Int
	Slot     *contract.Slot
}

// Cache maps wallet id to session. It has no expiry; entries leave only
// through Evict or Clear.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*Session

	box     *secret.Box
	slot    *contract.Slot
	chainID *big.Int
}

// NewCache creates an empty cache
func NewCache(box *secret.Box, slot *contract.Slot, chainID *big.Int) *Cache {
	return &Cache{
		sessions: make(map[string]*Session),
		box:      box,
		slot:     slot,
		chainID:  chainID,
	}
}

// GetOrCreate returns the cached session for wallet or decrypts its key to build one.
// The derived address must match the record.
func (c *Cache) GetOrCreate(wallet types.WalletRecord, passphrase string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[wallet.ID]; ok {
		return s, nil
	}

	keyHex, err := c.box.DecryptString(wallet.EncryptedSecret, passphrase)
	if err != nil {
		return nil, err
	}
	key, addr, err := contract.ParseKey(keyHex)
	if err != nil {
		return nil, apperrors.NewInternalError("stored private key is unreadable", err)
	}
	if !strings.EqualFold(addr.Hex(), wallet.Address) {
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("derived address %s does not match wallet %s", addr.Hex(), wallet.Address), nil)
	}

	s := &Session{
		WalletID: wallet.ID,
		Address:  addr,
		Key:      key,
		ChainID:  c.chainID,
		Slot:     c.slot,
	}
	c.sessions[wallet.ID] = s
	return s, nil
}

// Evict drops the session for walletID
func (c *Cache) Evict(walletID string) {
	c.mu.Lock()
	delete(c.sessions, walletID)
	c.mu.Unlock()
}

// Clear drops every session
func (c *Cache) Clear() {
	c.mu.Lock()
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()
}

// Len returns the number of cached sessions
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
