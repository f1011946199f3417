package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/and161185/keygate/internal/crypto"
	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

// memStore is an in-memory repository.Store. WithTx snapshots state and
// restores it when fn fails, so tests observe rollback.
type memStore struct {
	txMu     sync.Mutex // serializes transactions
	mu       sync.Mutex
	accounts map[string]*model.Account
	tokens   map[string]*model.ActivationToken

	getErr error
	txs    int

	// beforeCreate runs inside Create ahead of the uniqueness checks, standing
	// in for a concurrent transaction that committed after our lookups.
	beforeCreate func(accounts map[string]*model.Account)
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{accounts: map[string]*model.Account{}, tokens: map[string]*model.ActivationToken{}}
}

func (m *memStore) addToken(key string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = &model.ActivationToken{APIKey: key, OwnerID: "tg-1", IssuedAt: time.Now().UTC(), Active: active}
}

func (m *memStore) account(email string) *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil
	}
	c := *a
	return &c
}

func (m *memStore) Accounts() repository.AccountRepository { return memAccounts{m} }
func (m *memStore) Tokens() repository.TokenRepository     { return memTokens{m} }

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.txs++
	snapshot := make(map[string]model.Account, len(m.accounts))
	for k, v := range m.accounts {
		snapshot[k] = *v
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.accounts = make(map[string]*model.Account, len(snapshot))
		for k, v := range snapshot {
			c := v
			m.accounts[k] = &c
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

type memAccounts struct{ m *memStore }

func (r memAccounts) Create(_ context.Context, a *model.Account) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.beforeCreate != nil {
		r.m.beforeCreate(r.m.accounts)
	}
	if _, ok := r.m.accounts[a.Email]; ok {
		return errs.ErrEmailExists
	}
	for _, x := range r.m.accounts {
		if x.APIKey == a.APIKey {
			return errs.ErrKeyInUse
		}
	}
	c := *a
	r.m.accounts[a.Email] = &c
	return nil
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.getErr != nil {
		return nil, r.m.getErr
	}
	a, ok := r.m.accounts[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r memAccounts) GetByAPIKey(_ context.Context, apiKey string) (*model.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.getErr != nil {
		return nil, r.m.getErr
	}
	for _, a := range r.m.accounts {
		if a.APIKey == apiKey {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memAccounts) update(email string, fn func(a *model.Account) error) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[email]
	if !ok {
		return errs.ErrNotFound
	}
	return fn(a)
}

func (r memAccounts) SetVerified(_ context.Context, email string) error {
	return r.update(email, func(a *model.Account) error {
		a.EmailVerified = true
		a.VerificationCode, a.CodeExpiry, a.CodeCreated = nil, nil, nil
		return nil
	})
}

func (r memAccounts) SetVerificationCode(_ context.Context, email, code string, expiry, created time.Time) error {
	return r.update(email, func(a *model.Account) error {
		a.VerificationCode, a.CodeExpiry, a.CodeCreated = &code, &expiry, &created
		return nil
	})
}

func (r memAccounts) SetAPIKey(_ context.Context, email, apiKey string) error {
	return r.update(email, func(a *model.Account) error {
		for e, x := range r.m.accounts {
			if e != email && x.APIKey == apiKey {
				return errs.ErrKeyInUse
			}
		}
		a.APIKey = apiKey
		return nil
	})
}

func (r memAccounts) SetPasswordHash(_ context.Context, email string, hash []byte) error {
	return r.update(email, func(a *model.Account) error {
		a.PasswordHash = append([]byte(nil), hash...)
		return nil
	})
}

type memTokens struct{ m *memStore }

func (r memTokens) GetActive(_ context.Context, apiKey string) (*model.ActivationToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tokens[apiKey]
	if !ok || !t.Active {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu    sync.Mutex
	sync  []sentMail
	async []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync = append(f.sync, sentMail{to, subject, body})
	return true
}

func (f *fakeMailer) SendAsync(to, subject, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = append(f.async, sentMail{to, subject, body})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store  *memStore
	mailer *fakeMailer
	clock  *clock
	svc    *AccountServiceImpl
	authz  *AuthorizerImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := crypto.NewHasher(crypto.Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	st := newMemStore()
	ml := &fakeMailer{}
	c := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := NewAccountService(st, h, ml, DefaultOptions, nil)
	svc.now = c.now
	return &fixture{store: st, mailer: ml, clock: c, svc: svc, authz: NewAuthorizer(st)}
}

// lastCode returns the pending code stored for email.
func (f *fixture) lastCode(t *testing.T, email string) string {
	t.Helper()
	a := f.store.account(email)
	if a == nil || a.VerificationCode == nil {
		t.Fatalf("no pending code for %s", email)
	}
	return *a.VerificationCode
}
