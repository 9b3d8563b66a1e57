// Package stub provides in-memory solana client implementations for tests.
package stub

import (
	"context"
	"sync"

	"dlmm-rebalancer/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	// Accounts maps pubkey to scripted account info.
	Accounts map[string]*solana.AccountInfo

	// Blockhash is returned by GetLatestBlockhash.
	Blockhash string

	// Slot is returned by GetSlot.
	Slot int64

	// SendErr forces SendTransaction to fail.
	SendErr error

	// SentTransactions logs every SendTransaction payload.
	SentTransactions []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:  make(map[string]*solana.AccountInfo),
		Blockhash: "11111111111111111111111111111111",
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// SetAccount scripts an account.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// GetAccountInfo retrieves a scripted account. Missing accounts return nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	infoCopy := *info
	return &infoCopy, nil
}

// GetMultipleAccounts retrieves scripted accounts in key order.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]*solana.AccountInfo, len(pubkeys))
	for i, pk := range pubkeys {
		if info, ok := c.Accounts[pk]; ok {
			infoCopy := *info
			infos[i] = &infoCopy
		}
	}
	return infos, nil
}

// GetLatestBlockhash returns the scripted blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Blockhash, nil
}

// SendTransaction logs the payload and returns a synthetic signature.
func (c *RPCClient) SendTransaction(_ context.Context, encodedTx string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.SentTransactions = append(c.SentTransactions, encodedTx)
	return "stubsig", nil
}

// GetSlot returns the scripted slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}
