package invitations

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/models"
)

// memStore keeps everything in maps. WithTx holds the lock for the whole
// transaction, like a row lock held until commit, and restores a snapshot
// when fn fails.
type memStore struct {
	mu          sync.Mutex
	invitations map[uuid.UUID]*models.Invitation
	users       map[string]*models.User
	roles       map[uuid.UUID][]string
	members     []*models.AgencyMember

	failAddMember error
	// hideEmails makes the pre-checks miss registered users so the unique
	// constraint in CreateUser is what catches the race.
	hideEmails bool
}

func newMemStore() *memStore {
	return &memStore{
		invitations: map[uuid.UUID]*models.Invitation{},
		users:       map[string]*models.User{},
		roles:       map[uuid.UUID][]string{},
	}
}

func clone(inv *models.Invitation) *models.Invitation {
	cp := *inv
	cp.Rights = slices.Clone(inv.Rights)
	return &cp
}

func (s *memStore) Create(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.Token == inv.Token {
			return ErrTokenTaken
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	s.invitations[inv.ID] = clone(inv)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(inv), nil
}

func (s *memStore) byTokenLocked(token string) (*models.Invitation, error) {
	for _, inv := range s.invitations {
		if inv.Token == token {
			return clone(inv), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) GetByToken(_ context.Context, token string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byTokenLocked(token)
}

func (s *memStore) ListByAgency(_ context.Context, agencyID uuid.UUID) ([]*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Invitation
	for _, inv := range s.invitations {
		if inv.AgencyID == agencyID {
			out = append(out, clone(inv))
		}
	}
	return out, nil
}

func (s *memStore) ListAll(_ context.Context) ([]*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Invitation
	for _, inv := range s.invitations {
		out = append(out, clone(inv))
	}
	return out, nil
}

func (s *memStore) HasPending(_ context.Context, agencyID uuid.UUID, email string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.AgencyID == agencyID && inv.Email == email && Classify(inv, now) == StateValid {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) emailRegisteredLocked(email string) bool {
	if s.hideEmails {
		return false
	}
	_, ok := s.users[auth.NormalizeEmail(email)]
	return ok
}

func (s *memStore) EmailRegistered(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailRegisteredLocked(email), nil
}

func (s *memStore) ExtendExpiry(_ context.Context, id uuid.UUID, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.AcceptedAt != nil {
		return false, nil
	}
	inv.ExpiresAt = expiresAt
	return true, nil
}

func (s *memStore) DeletePending(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.AcceptedAt != nil {
		return false, nil
	}
	delete(s.invitations, id)
	return true, nil
}

func (s *memStore) WithTx(_ context.Context, fn func(tx AcceptTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitations := make(map[uuid.UUID]*models.Invitation, len(s.invitations))
	for id, inv := range s.invitations {
		invitations[id] = clone(inv)
	}
	users := maps.Clone(s.users)
	roles := maps.Clone(s.roles)
	members := slices.Clone(s.members)
	if err := fn(memTx{s}); err != nil {
		s.invitations, s.users, s.roles, s.members = invitations, users, roles, members
		return err
	}
	return nil
}

// registerUser simulates a direct signup that commits outside any invitation.
func (s *memStore) registerUser(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = auth.NormalizeEmail(email)
	s.users[email] = &models.User{ID: uuid.New(), Email: email}
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) memberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

type memTx struct{ s *memStore }

func (t memTx) Claim(_ context.Context, token string, now time.Time) (*models.Invitation, error) {
	for _, inv := range t.s.invitations {
		if inv.Token == token && inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
			at := now
			inv.AcceptedAt = &at
			return clone(inv), nil
		}
	}
	return nil, nil
}

func (t memTx) GetByToken(_ context.Context, token string) (*models.Invitation, error) {
	return t.s.byTokenLocked(token)
}

func (t memTx) EmailRegistered(_ context.Context, email string) (bool, error) {
	return t.s.emailRegisteredLocked(email), nil
}

func (t memTx) CreateUser(_ context.Context, p auth.CreateUserParams) (*models.User, error) {
	email := auth.NormalizeEmail(p.Email)
	if _, ok := t.s.users[email]; ok {
		return nil, auth.ErrEmailTaken
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: p.PasswordHash, FullName: p.FullName, EmailVerifiedAt: p.VerifiedAt}
	t.s.users[email] = u
	return u, nil
}

func (t memTx) AssignRole(_ context.Context, userID uuid.UUID, role string) error {
	t.s.roles[userID] = append(slices.Clone(t.s.roles[userID]), role)
	return nil
}

func (t memTx) AddMember(_ context.Context, m *models.AgencyMember) error {
	if t.s.failAddMember != nil {
		return t.s.failAddMember
	}
	for _, existing := range t.s.members {
		if existing.AgencyID == m.AgencyID && existing.UserID == m.UserID {
			return errors.New("duplicate membership")
		}
	}
	m.ID = uuid.New()
	cp := *m
	t.s.members = append(t.s.members, &cp)
	return nil
}

func (t memTx) MarkAcceptedBy(_ context.Context, invitationID, userID uuid.UUID) error {
	inv, ok := t.s.invitations[invitationID]
	if !ok || inv.AcceptedAt == nil {
		return ErrNotFound
	}
	inv.AcceptedBy = &userID
	return nil
}

type fakeAgencies map[uuid.UUID]*models.Agency

func (f fakeAgencies) Get(_ context.Context, id uuid.UUID) (*models.Agency, error) {
	a, ok := f[id]
	if !ok {
		return nil, errors.New("agency not found")
	}
	return a, nil
}

func (f fakeAgencies) LogoURL(_ context.Context, a *models.Agency) string {
	if a.LogoKey == "" {
		return ""
	}
	return "https://cdn.test/" + a.LogoKey
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	n.Invitation = clone(n.Invitation)
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) last() Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}
