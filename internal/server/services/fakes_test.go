package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/dbx"
	"github.com/voyagerhq/auth-service/internal/server/models"
	"github.com/voyagerhq/auth-service/internal/server/repositories/refreshtokens"
	"github.com/voyagerhq/auth-service/internal/server/repositories/users"
	"github.com/voyagerhq/auth-service/internal/server/repositories/verifications"
	"github.com/voyagerhq/auth-service/internal/shared"
)

// fakeStore is a stateful in-memory stand-in for Postgres. Every repository
// the fake manager hands out shares it, so multi-step scenarios (login →
// rotate → reuse) behave like one database. A coarse clock that advances on
// every write keeps creation-time ordering deterministic for the
// session-cap tests.
type fakeStore struct {
	mu sync.Mutex

	users      map[int64]*models.User
	nextUserID int64

	tokens      map[string]*models.RefreshToken // by hash
	nextTokenID int64

	verifs map[string]*models.EmailVerificationToken

	clock time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]*models.User),
		tokens: make(map[string]*models.RefreshToken),
		verifs: make(map[string]*models.EmailVerificationToken),
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (st *fakeStore) tick() time.Time {
	st.clock = st.clock.Add(time.Second)
	return st.clock
}

// fakeRepoManager satisfies repomanager.RepositoryManager but ignores the
// DBTX handle: the fakes have no notion of transactions.
type fakeRepoManager struct{ st *fakeStore }

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return &fakeUsersRepo{m.st} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return &fakeTokensRepo{m.st} }
func (m *fakeRepoManager) Verifications(dbx.DBTX) verifications.Repository {
	return &fakeVerifsRepo{m.st}
}
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

// --- users ---

type fakeUsersRepo struct{ st *fakeStore }

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	r.st.nextUserID++
	u.ID = r.st.nextUserID
	u.CreatedAt = r.st.tick()
	u.LastSeenAt = u.CreatedAt
	cp := *u
	r.st.users[u.ID] = &cp
	return u, nil
}

func (r *fakeUsersRepo) FindByID(_ context.Context, id int64) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUsersRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, u := range r.st.users {
		if u.Email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) FindByProvider(_ context.Context, provider, providerID string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, u := range r.st.users {
		if u.AuthProvider == provider && u.ProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) LinkProvider(_ context.Context, id int64, provider, providerID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.AuthProvider, u.ProviderID = provider, providerID
	return nil
}

func (r *fakeUsersRepo) SetPasswordHash(_ context.Context, id int64, hash string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUsersRepo) SetEmailVerified(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	return nil
}

func (r *fakeUsersRepo) TouchLastSeen(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.LastSeenAt = r.st.tick()
	return nil
}

// --- refresh tokens ---

type fakeTokensRepo struct{ st *fakeStore }

func (r *fakeTokensRepo) Create(_ context.Context, userID int64, familyID string, validity time.Duration) (string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	raw, err := shared.MakeRandHexString(32)
	if err != nil {
		return "", err
	}
	if familyID == "" {
		familyID = raw[:8] + "-family"
	}

	r.st.nextTokenID++
	now := r.st.tick()
	r.st.tokens[shared.HashToken(raw)] = &models.RefreshToken{
		ID:        r.st.nextTokenID,
		UserID:    userID,
		TokenHash: shared.HashToken(raw),
		FamilyID:  familyID,
		ExpiresAt: now.Add(validity),
		CreatedAt: now,
	}
	return raw, nil
}

func (r *fakeTokensRepo) Consume(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.tokens[tokenHash]
	if !ok || t.Revoked() || t.Expired(r.st.clock) {
		return nil, common.ErrorNotFound
	}
	now := r.st.tick()
	t.RevokedAt = &now
	cp := *t
	return &cp, nil
}

func (r *fakeTokensRepo) Find(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTokensRepo) Revoke(_ context.Context, tokenHash string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if t, ok := r.st.tokens[tokenHash]; ok && !t.Revoked() {
		now := r.st.tick()
		t.RevokedAt = &now
	}
	return nil
}

func (r *fakeTokensRepo) RevokeFamily(_ context.Context, familyID string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var n int64
	now := r.st.tick()
	for _, t := range r.st.tokens {
		if t.FamilyID == familyID && !t.Revoked() {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeTokensRepo) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var n int64
	now := r.st.tick()
	for _, t := range r.st.tokens {
		if t.UserID == userID && !t.Revoked() {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeTokensRepo) EnforceSessionLimit(_ context.Context, userID int64, max int) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var live []*models.RefreshToken
	for _, t := range r.st.tokens {
		if t.UserID == userID && !t.Revoked() && !t.Expired(r.st.clock) {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].ID > live[j].ID
	})

	var n int64
	now := r.st.tick()
	for i := max; i < len(live); i++ {
		live[i].RevokedAt = &now
		n++
	}
	return n, nil
}

func (r *fakeTokensRepo) DeleteExpired(_ context.Context, retain time.Duration) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	cutoff := r.st.clock.Add(-retain)
	var n int64
	for h, t := range r.st.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.st.tokens, h)
			n++
		}
	}
	return n, nil
}

// --- verification tokens ---

type fakeVerifsRepo struct{ st *fakeStore }

func (r *fakeVerifsRepo) Create(_ context.Context, userID int64, validity time.Duration) (string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	raw, err := shared.MakeRandHexString(32)
	if err != nil {
		return "", err
	}
	now := r.st.tick()
	r.st.verifs[shared.HashToken(raw)] = &models.EmailVerificationToken{
		UserID:    userID,
		TokenHash: shared.HashToken(raw),
		ExpiresAt: now.Add(validity),
		CreatedAt: now,
	}
	return raw, nil
}

func (r *fakeVerifsRepo) Consume(_ context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.verifs[tokenHash]
	if !ok || t.ConsumedAt != nil || t.ExpiresAt.Before(r.st.clock) {
		return nil, common.ErrorNotFound
	}
	now := r.st.tick()
	t.ConsumedAt = &now
	cp := *t
	return &cp, nil
}

// --- collaborators ---

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	email string
	token string
}

func (m *fakeMailer) SendVerification(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{email: email, token: rawToken})
	return nil
}

type fakeBreachChecker struct{ count int }

func (f *fakeBreachChecker) Count(context.Context, string) int { return f.count }
