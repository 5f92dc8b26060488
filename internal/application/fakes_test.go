package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// --- In-memory account store ---

type memAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]model.Account
	listErr  error
	writeErr error
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: map[int64]model.Account{}}
}

func (m *memAccountStore) add(a model.Account) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = a
	return a
}

func (m *memAccountStore) get(id int64) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

func (m *memAccountStore) ListLocalAccounts(_ context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccountStore) GetLocalAccount(_ context.Context, id int64) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return model.Account{}, driven.ErrAccountNotFound
	}
	return a, nil
}

func (m *memAccountStore) UpsertLocalAccount(_ context.Context, account model.Account) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return model.Account{}, m.writeErr
	}
	for id, a := range m.accounts {
		if a.Username == account.Username {
			a.RemoteID = account.RemoteID
			a.Password = account.Password
			a.MaxActivePoints = account.MaxActivePoints
			a.Expiration = account.Expiration
			m.accounts[id] = a
			return a, nil
		}
	}
	m.nextID++
	account.ID = m.nextID
	m.accounts[account.ID] = account
	return account, nil
}

func (m *memAccountStore) UpdateMirroredFields(_ context.Context, id int64, remote model.RemoteAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.RemoteID = remote.ID
	a.Password = remote.Password
	a.MaxActivePoints = remote.MaxActivePoints
	a.Expiration = remote.Expiration
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) RecordRenewal(_ context.Context, id int64, expectedCount int, newExpiration, renewedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	if a.RenewalCount != expectedCount {
		return driven.ErrRenewalConflict
	}
	if newExpiration.After(a.Expiration) {
		a.Expiration = newExpiration
	}
	a.RenewalCount++
	a.LastRenewalAt = &renewedAt
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) SetRenewalSettings(_ context.Context, id int64, autoRenewal bool, advanceMinutes *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.AutoRenewalEnabled = autoRenewal
	a.RenewalAdvanceMinutes = advanceMinutes
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) SetNote(_ context.Context, id int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.Note = note
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) SuspendRenewal(_ context.Context, id int64, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.RenewalSuspendedAt = &at
	a.RenewalSuspendReason = reason
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) ResumeRenewal(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.RenewalSuspendedAt = nil
	a.RenewalSuspendReason = ""
	m.accounts[id] = a
	return nil
}

func (m *memAccountStore) DeleteLocalAccount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.accounts[id]; !ok {
		return driven.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

// --- In-memory automation config store ---

type memConfigStore struct {
	mu      sync.Mutex
	cfg     model.AutomationConfig
	getErr  error
	touches int
}

func newMemConfigStore(enabled bool, advance int) *memConfigStore {
	cfg := model.DefaultAutomationConfig()
	cfg.IsEnabled = enabled
	cfg.RenewalAdvanceTime = advance
	cfg.Version = 1
	return &memConfigStore{cfg: cfg}
}

func (m *memConfigStore) GetAutomationConfig(_ context.Context) (model.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return model.AutomationConfig{}, m.getErr
	}
	return m.cfg, nil
}

func (m *memConfigStore) UpdateAutomationConfig(_ context.Context, update model.AutomationConfigUpdate) (model.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.IsEnabled = update.IsEnabled
	m.cfg.RenewalAdvanceTime = update.RenewalAdvanceTime
	m.cfg.RenewalPeriodMinutes = update.RenewalPeriodMinutes
	m.cfg.DefaultAutoRenewal = update.DefaultAutoRenewal
	m.cfg.Version++
	return m.cfg, nil
}

func (m *memConfigStore) TouchLastRun(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.LastRunAt = &at
	m.touches++
	return nil
}

func (m *memConfigStore) setEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.IsEnabled = enabled
}

// --- In-memory ledger ---

type memLedger struct {
	mu      sync.Mutex
	entries []model.AutomationTaskLog
}

func (m *memLedger) Append(_ context.Context, entry model.AutomationTaskLog) (model.AutomationTaskLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memLedger) FindLatestForExpiration(_ context.Context, accountID int64, taskType model.TaskType, expiration time.Time, status model.TaskStatus) (*model.AutomationTaskLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.RelatedAccountID != nil && *e.RelatedAccountID == accountID &&
			e.TaskType == taskType && e.Status == status &&
			e.Expiration != nil && e.Expiration.Equal(expiration) {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memLedger) ListRecent(_ context.Context, limit int) ([]model.AutomationTaskLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AutomationTaskLog
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// count returns how many entries match the filter. accountID 0 matches
// entries without an account.
func (m *memLedger) count(taskType model.TaskType, status model.TaskStatus, accountID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.TaskType != taskType || e.Status != status {
			continue
		}
		if accountID == 0 && e.RelatedAccountID == nil {
			n++
		} else if e.RelatedAccountID != nil && *e.RelatedAccountID == accountID {
			n++
		}
	}
	return n
}

func (m *memLedger) all() []model.AutomationTaskLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AutomationTaskLog(nil), m.entries...)
}

// --- Fake panel ---

type fakePanel struct {
	mu        sync.Mutex
	accounts  map[string]model.RemoteAccount // keyed by remote id
	listErr   error
	renewErr  map[string]error
	renewHook func(ctx context.Context)
	period    time.Duration
	renewals  map[string]int
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		accounts: map[string]model.RemoteAccount{},
		renewErr: map[string]error{},
		period:   30 * 24 * time.Hour,
		renewals: map[string]int{},
	}
}

func (p *fakePanel) put(a model.RemoteAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[a.ID] = a
}

func (p *fakePanel) renewCount(remoteID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renewals[remoteID]
}

func (p *fakePanel) ListRemoteAccounts(ctx context.Context) ([]model.RemoteAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteTransient, Op: "list accounts", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make([]model.RemoteAccount, 0, len(p.accounts))
	for _, a := range p.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (p *fakePanel) RenewAccount(ctx context.Context, remoteID string) (model.RenewalOutcome, error) {
	if p.renewHook != nil {
		p.renewHook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return model.RenewalOutcome{}, &driven.RemoteError{Kind: driven.RemoteTransient, Op: "renew account", Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.renewErr[remoteID]; err != nil {
		return model.RenewalOutcome{}, err
	}
	a, ok := p.accounts[remoteID]
	if !ok {
		return model.RenewalOutcome{}, &driven.RemoteError{Kind: driven.RemotePermanent, Op: "renew account", StatusCode: 404, Err: errors.New("line not found")}
	}
	a.Expiration = a.Expiration.Add(p.period)
	p.accounts[remoteID] = a
	p.renewals[remoteID]++
	return model.RenewalOutcome{NewExpiration: a.Expiration}, nil
}

func (p *fakePanel) CreateRemoteAccount(_ context.Context, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	return model.RemoteAccount{Username: in.Username, Password: in.Password, MaxActivePoints: in.MaxActivePoints, Expiration: in.Expiration}, nil
}

func (p *fakePanel) UpdateRemoteAccount(_ context.Context, remoteID string, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	return model.RemoteAccount{ID: remoteID, Username: in.Username, Password: in.Password, MaxActivePoints: in.MaxActivePoints, Expiration: in.Expiration}, nil
}

func (p *fakePanel) DeleteRemoteAccount(_ context.Context, _ string) error {
	return nil
}

// --- Fake clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
