package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/repository"
)

// fakeUserRepo is an in-memory UserRepository mirroring the conditional
// update semantics of the Postgres implementation.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = uuid.New().String()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *fakeUserRepo) GetByOAuthIdentity(_ context.Context, _, _ string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, userID string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, userID)
	return nil
}

func (r *fakeUserRepo) ClaimCode(_ context.Context, userID string, flow domain.FlowKind, codeHash string, expiresAt, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.LastCodeRequestAt != nil && u.LastCodeRequestAt.After(cutoff) {
		return repository.ErrCooldownActive
	}
	now := time.Now()
	exp := expiresAt
	if flow == domain.FlowReset {
		u.ResetCodeHash = codeHash
		u.ResetCodeExpiresAt = &exp
	} else {
		u.VerificationCodeHash = codeHash
		u.VerificationCodeExpiresAt = &exp
	}
	u.LastCodeRequestAt = &now
	u.UpdatedAt = now
	return nil
}

func (r *fakeUserRepo) ClearVerificationCode(_ context.Context, userID string, markVerified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.VerificationCodeHash == "" {
		return repository.ErrNoActiveCode
	}
	u.VerificationCodeHash = ""
	u.VerificationCodeExpiresAt = nil
	if markVerified {
		u.IsEmailVerified = true
	}
	return nil
}

func (r *fakeUserRepo) ClearResetCode(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ResetCodeHash == "" {
		return repository.ErrNoActiveCode
	}
	u.ResetCodeHash = ""
	u.ResetCodeExpiresAt = nil
	return nil
}

// fakeTokenRepo is an in-memory TokenRepository keyed by token hash
type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()
	c := *token
	r.tokens[token.TokenHash] = &c
	return nil
}

func (r *fakeTokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *fakeTokenRepo) GetByUserID(_ context.Context, userID string) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RefreshToken
	for _, t := range r.tokens {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeTokenRepo) Delete(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, t := range r.tokens {
		if t.ID == tokenID {
			delete(r.tokens, hash)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeTokenRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tokens, tokenHash)
	return nil
}

func (r *fakeTokenRepo) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for hash, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, hash)
		}
	}
	return nil
}

// fakeLinkRepo is an in-memory OAuthLinkRepository enforcing the
// (provider, provider_user_id) uniqueness the schema guarantees.
type fakeLinkRepo struct {
	mu    sync.Mutex
	links []*domain.OAuthLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{}
}

func (r *fakeLinkRepo) Create(_ context.Context, link *domain.OAuthLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.links {
		if existing.Provider == link.Provider && existing.ProviderUserID == link.ProviderUserID {
			return repository.ErrDuplicateOAuthLink
		}
	}
	link.ID = uuid.New().String()
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	c := *link
	r.links = append(r.links, &c)
	return nil
}

func (r *fakeLinkRepo) GetByProviderIdentity(_ context.Context, provider, providerUserID string) (*domain.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			c := *l
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeLinkRepo) GetByUserID(_ context.Context, userID string) ([]*domain.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OAuthLink
	for _, l := range r.links {
		if l.UserID == userID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) UpdateTokens(_ context.Context, linkID, accessToken, refreshToken string, tokenExpiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.ID == linkID {
			l.AccessToken = accessToken
			l.RefreshToken = refreshToken
			l.TokenExpiresAt = tokenExpiresAt
			l.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeLinkRepo) Delete(_ context.Context, linkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.links {
		if l.ID == linkID {
			r.links = append(r.links[:i], r.links[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// captureMailer records dispatched codes instead of sending email
type captureMailer struct {
	mu   sync.Mutex
	sent []sentCode
	fail bool
}

type sentCode struct {
	email string
	code  string
	flow  domain.FlowKind
}

func (m *captureMailer) SendVerificationCode(_ context.Context, email, code string) error {
	return m.record(email, code, domain.FlowVerification)
}

func (m *captureMailer) SendPasswordResetCode(_ context.Context, email, code string) error {
	return m.record(email, code, domain.FlowReset)
}

func (m *captureMailer) record(email, code string, flow domain.FlowKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, sentCode{email: email, code: code, flow: flow})
	return nil
}

func (m *captureMailer) lastCode(flow domain.FlowKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].flow == flow {
			return m.sent[i].code
		}
	}
	return ""
}

func (m *captureMailer) countFor(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if strings.EqualFold(s.email, email) {
			n++
		}
	}
	return n
}

// memBlacklist is an in-memory TokenBlacklist
type memBlacklist struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{tokens: make(map[string]struct{})}
}

func (b *memBlacklist) AddToken(_ context.Context, token string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = struct{}{}
	return nil
}

func (b *memBlacklist) IsTokenBlacklisted(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok, nil
}
