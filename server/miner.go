package server

import (
	"context"
	"dsg-rpc/command"
	"errors"
	"sync"
)

// ErrNoDMCAccount is returned by DMCKey for an account the miner does not hold.
var ErrNoDMCAccount = errors.New("miner: dmc account not set")

// MemoryMiner is an in-memory Miner for demo routers and tests.
type MemoryMiner struct {
	mu         sync.RWMutex
	stat       command.MinerStat
	account    string
	key        string
	httpDomain string
}

// NewMemoryMiner starts with all counters at zero.
func NewMemoryMiner() *MemoryMiner {
	const zero = "0"
	return &MemoryMiner{stat: command.MinerStat{
		BillCount:   zero,
		OrderCount:  zero,
		BilledSpace: zero,
		SelledSpace: zero,
		UsedSpace:   zero,
	}}
}

// SetStat replaces the reported statistics.
func (m *MemoryMiner) SetStat(stat command.MinerStat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stat = stat
}

func (m *MemoryMiner) Stat(context.Context) (command.MinerStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stat, nil
}

func (m *MemoryMiner) DMCKey(_ context.Context, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.account == "" || m.account != account {
		return "", ErrNoDMCAccount
	}
	return m.key, nil
}

func (m *MemoryMiner) DMCAccount(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account, nil
}

func (m *MemoryMiner) SetDMCAccount(_ context.Context, account, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account, m.key = account, key
	return nil
}

func (m *MemoryMiner) SetHTTPDomain(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpDomain = domain
	return nil
}

// HTTPDomain returns the last domain set.
func (m *MemoryMiner) HTTPDomain() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.httpDomain
}
