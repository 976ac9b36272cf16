package authcore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tessellated/authcore/password"
	"github.com/tessellated/authcore/session"
)

var errFakeNotFound = errors.New("fake account store: not found")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAccounts struct {
	mu      sync.Mutex
	records map[string]AccountRecord
	idents  map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		records: make(map[string]AccountRecord),
		idents:  make(map[string]string),
	}
}

func (f *fakeAccounts) add(rec AccountRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.AccountID] = rec
	f.idents[rec.Identifier] = rec.AccountID
}

func (f *fakeAccounts) get(accountID string) (AccountRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[accountID]
	return rec, ok
}

func (f *fakeAccounts) GetByIdentifier(_ context.Context, identifier string) (AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.idents[identifier]
	if !ok {
		return AccountRecord{}, errFakeNotFound
	}
	return f.records[id], nil
}

func (f *fakeAccounts) GetByID(_ context.Context, accountID string) (AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[accountID]
	if !ok {
		return AccountRecord{}, errFakeNotFound
	}
	return rec, nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, accountID string, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[accountID]
	if !ok {
		return errFakeNotFound
	}
	rec.PasswordHash = newHash
	f.records[accountID] = rec
	return nil
}

func (f *fakeAccounts) UpdateStatus(_ context.Context, accountID string, status AccountStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[accountID]
	if !ok {
		return errFakeNotFound
	}
	rec.Status = status
	f.records[accountID] = rec
	return nil
}

func (f *fakeAccounts) setStatus(accountID string, status AccountStatus) {
	_ = f.UpdateStatus(context.Background(), accountID, status)
}

type testEnv struct {
	engine   *Engine
	accounts *fakeAccounts
	clock    *testClock
	redis    *miniredis.Miniredis
	hasher   PasswordHasher
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = 2 * time.Hour
	cfg.Session.RetentionWindow = 48 * time.Hour
	cfg.Password = PasswordConfig{
		Memory:         8 * 1024,
		Time:           1,
		Parallelism:    1,
		SaltLength:     16,
		KeyLength:      16,
		UpgradeOnLogin: true,
	}
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open session db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	clock := newTestClock()
	accounts := newFakeAccounts()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithDB(db).
		WithAccountStore(accounts).
		WithPasswordHasher(ph).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		accounts: accounts,
		clock:    clock,
		redis:    mr,
		hasher:   ph,
	}
}

func (env *testEnv) seedAccount(t *testing.T, accountID, identifier, pw, role string, status AccountStatus) {
	t.Helper()

	hash, err := env.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash seed password: %v", err)
	}
	env.accounts.add(AccountRecord{
		AccountID:    accountID,
		Identifier:   identifier,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	})
}
