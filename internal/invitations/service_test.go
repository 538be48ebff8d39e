package invitations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/policy"
	"github.com/wondershark/backend/pkg/passwords"
	"github.com/wondershark/backend/pkg/validation"
)

type fixture struct {
	store    *memStore
	notifier *fakeNotifier
	svc      *Service
	agency   *models.Agency
	owner    policy.Actor
	delegate policy.Actor
	member   policy.Actor
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		notifier: &fakeNotifier{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	ownerID := uuid.New()
	f.agency = &models.Agency{ID: uuid.New(), Name: "Acme", OwnerID: ownerID, LogoKey: "logos/acme.png"}
	f.owner = policy.Actor{UserID: ownerID}

	delegateID, memberID := uuid.New(), uuid.New()
	f.delegate = policy.Actor{UserID: delegateID, Membership: &models.AgencyMember{
		AgencyID: f.agency.ID, UserID: delegateID, Role: models.RoleAgencyMember,
		Rights: []string{models.RightManageInvitations},
	}}
	f.member = policy.Actor{UserID: memberID, Membership: &models.AgencyMember{
		AgencyID: f.agency.ID, UserID: memberID, Role: models.RoleAgencyMember,
		Rights: []string{models.RightViewBrands},
	}}

	f.svc = NewService(f.store, fakeAgencies{f.agency.ID: f.agency}, f.notifier,
		Config{BaseURL: "https://app.wondershark.test/", TTL: DefaultTTL}, nil)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) issue(t *testing.T, name, email string, rights ...string) *models.Invitation {
	t.Helper()
	inv, err := f.svc.Issue(context.Background(), f.owner, f.agency, IssueInput{Name: name, Email: email, Rights: rights})
	require.NoError(t, err)
	return inv
}

func (f *fixture) accept(token, password string) (*AcceptResult, error) {
	return f.svc.Accept(context.Background(), AcceptInput{Token: token, Password: password, PasswordConfirmation: password})
}

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestIssue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	inv := f.issue(t, " Jane ", "Jane@Acme.com", models.RightViewBrands, models.RightViewBrands)
	require.Equal(t, "Jane", inv.Name)
	require.Equal(t, "jane@acme.com", inv.Email)
	require.Equal(t, models.RoleAgencyMember, inv.Role)
	require.Equal(t, []string{models.RightViewBrands}, inv.Rights)
	require.Equal(t, f.clock.Add(48*time.Hour), inv.ExpiresAt)
	require.Equal(t, f.owner.UserID, *inv.InvitedBy)
	require.NotEmpty(t, inv.Token)

	n := f.notifier.last()
	require.False(t, n.Resend)
	require.Equal(t, "Acme", n.AgencyName)
	require.Equal(t, "https://app.wondershark.test/agency/invitation/accept/"+inv.Token, n.AcceptURL)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		inv := f.issue(t, "User", fmt.Sprintf("user%d@acme.com", i))
		require.False(t, seen[inv.Token], "duplicate token")
		seen[inv.Token] = true
	}
}

func TestIssue_RetriesTokenCollision(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tokens := []string{"same", "same", "other"}
	f.svc.newToken = func() (string, error) {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok, nil
	}
	first := f.issue(t, "A", "a@acme.com")
	second := f.issue(t, "B", "b@acme.com")
	require.Equal(t, "same", first.Token)
	require.Equal(t, "other", second.Token)
}

func TestIssue_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.owner, f.agency, IssueInput{Email: "not-an-email"})
	got := fields(t, err)
	require.Contains(t, got, "name")
	require.Contains(t, got, "email")

	_, err = f.svc.Issue(ctx, f.owner, f.agency, IssueInput{Name: "X", Email: "x@acme.com", Role: models.RoleAdmin})
	require.Contains(t, fields(t, err), "role")

	_, err = f.svc.Issue(ctx, f.owner, f.agency, IssueInput{Name: "X", Email: "x@acme.com", Rights: []string{"launch-missiles"}})
	require.Contains(t, fields(t, err), "rights")

	f.store.registerUser("taken@acme.com")
	_, err = f.svc.Issue(ctx, f.owner, f.agency, IssueInput{Name: "X", Email: "TAKEN@acme.com"})
	require.Equal(t, ErrEmailRegistered.Error(), fields(t, err)["email"])

	f.issue(t, "Dup", "dup@acme.com")
	_, err = f.svc.Issue(ctx, f.owner, f.agency, IssueInput{Name: "Dup", Email: "dup@acme.com"})
	require.Equal(t, ErrPendingExists.Error(), fields(t, err)["email"])

	f.clock = f.clock.Add(49 * time.Hour)
	f.issue(t, "Dup", "dup@acme.com")
}

func TestIssue_Authorization(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := IssueInput{Name: "X", Email: "x@acme.com"}

	_, err := f.svc.Issue(ctx, f.member, f.agency, in)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Issue(ctx, policy.Actor{UserID: uuid.New()}, f.agency, in)
	require.ErrorIs(t, err, ErrForbidden)

	inv, err := f.svc.Issue(ctx, f.delegate, f.agency, in)
	require.NoError(t, err)
	require.Equal(t, f.delegate.UserID, *inv.InvitedBy)
}

func TestIssue_DeliveryFailureKeepsInvitation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	inv, err := f.svc.Issue(context.Background(), f.owner, f.agency, IssueInput{Name: "X", Email: "x@acme.com"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.NotNil(t, inv)

	stored, err := f.store.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.Token, stored.Token)
}

func TestInspect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "Jane", "jane@acme.com", models.RightViewBrands)

	view, err := f.svc.Inspect(ctx, inv.Token)
	require.NoError(t, err)
	require.Equal(t, "Jane", view.Name)
	require.Equal(t, "jane@acme.com", view.Email)
	require.Equal(t, "Acme", view.AgencyName)
	require.Equal(t, "https://cdn.test/logos/acme.png", view.AgencyLogoURL)
	require.Equal(t, "March 3, 2026 at 12:00 PM UTC", view.ExpiresAtFormatted)

	_, err = f.svc.Inspect(ctx, "unknown")
	require.ErrorIs(t, err, ErrInvalidLink)
	_, err = f.svc.Inspect(ctx, "")
	require.ErrorIs(t, err, ErrInvalidLink)

	f.clock = inv.ExpiresAt
	_, err = f.svc.Inspect(ctx, inv.Token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestAccept_HappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com", models.RightViewBrands)

	res, err := f.accept(inv.Token, "Secret123")
	require.NoError(t, err)

	require.Equal(t, "jane@acme.com", res.User.Email)
	require.Equal(t, "Jane", res.User.FullName)
	require.NotNil(t, res.User.EmailVerifiedAt)
	require.True(t, passwords.Check("Secret123", res.User.Password))
	require.Equal(t, []string{models.RoleAgencyMember}, res.Roles)
	require.Equal(t, []string{models.RoleAgencyMember}, f.store.roles[res.User.ID])

	require.Equal(t, f.agency.ID, res.Membership.AgencyID)
	require.Equal(t, res.User.ID, res.Membership.UserID)
	require.Equal(t, []string{models.RightViewBrands}, res.Membership.Rights)
	require.Equal(t, 1, f.store.memberCount())

	stored, err := f.store.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AcceptedAt)
	require.Equal(t, f.clock, *stored.AcceptedAt)
	require.Equal(t, res.User.ID, *stored.AcceptedBy)
	require.Equal(t, StateAccepted, Classify(stored, f.clock))
}

func TestAccept_AcceptedIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com")

	_, err := f.accept(inv.Token, "Secret123")
	require.NoError(t, err)

	for _, pw := range []string{"Secret123", "different-password", "x"} {
		_, err = f.accept(inv.Token, pw)
		require.ErrorIs(t, err, ErrAlreadyAccepted)
	}
	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: inv.Token, Password: "Secret123", PasswordConfirmation: "Secret124"})
	require.ErrorIs(t, err, ErrAlreadyAccepted)
	f.clock = f.clock.Add(72 * time.Hour)
	_, err = f.accept(inv.Token, "Secret123")
	require.ErrorIs(t, err, ErrAlreadyAccepted)

	require.Equal(t, 1, f.store.userCount())
	require.Equal(t, 1, f.store.memberCount())
}

func TestAccept_ExpiryBoundary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	expired := f.issue(t, "Old", "old@acme.com")
	fresh := f.issue(t, "New", "new@acme.com")
	f.store.mu.Lock()
	f.store.invitations[expired.ID].ExpiresAt = f.clock.Add(-time.Second)
	f.store.invitations[fresh.ID].ExpiresAt = f.clock.Add(time.Second)
	f.store.mu.Unlock()

	_, err := f.accept(expired.Token, "Secret123")
	require.ErrorIs(t, err, ErrExpired)
	_, err = f.accept(expired.Token, "x")
	require.ErrorIs(t, err, ErrExpired)
	stored, err := f.store.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	require.Nil(t, stored.AcceptedAt)

	_, err = f.accept(fresh.Token, "Secret123")
	require.NoError(t, err)
}

func TestAccept_RollsBackOnMembershipFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com")
	f.store.failAddMember = errors.New("unique violation")

	_, err := f.accept(inv.Token, "Secret123")
	require.Error(t, err)

	require.Zero(t, f.store.userCount())
	require.Zero(t, f.store.memberCount())
	stored, err := f.store.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Nil(t, stored.AcceptedAt)
	require.Nil(t, stored.AcceptedBy)

	f.store.failAddMember = nil
	_, err = f.accept(inv.Token, "Secret123")
	require.NoError(t, err)
}

func TestAccept_EmailRace(t *testing.T) {
	t.Parallel()

	t.Run("pre-check", func(t *testing.T) {
		f := newFixture(t)
		inv := f.issue(t, "A", "a@x.com")
		f.store.registerUser("a@x.com")

		_, err := f.accept(inv.Token, "Secret123")
		require.ErrorIs(t, err, ErrEmailRegistered)
		require.Equal(t, 1, f.store.userCount())

		stored, err := f.store.GetByID(context.Background(), inv.ID)
		require.NoError(t, err)
		require.Nil(t, stored.AcceptedAt)
	})

	t.Run("unique constraint", func(t *testing.T) {
		f := newFixture(t)
		inv := f.issue(t, "A", "a@x.com")
		f.store.registerUser("a@x.com")
		f.store.hideEmails = true

		_, err := f.accept(inv.Token, "Secret123")
		require.ErrorIs(t, err, ErrEmailRegistered)
		require.Equal(t, 1, f.store.userCount())
		require.Zero(t, f.store.memberCount())
	})
}

func TestAccept_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.accept(inv.Token, "Secret123")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyAccepted)
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, f.store.userCount())
	require.Equal(t, 1, f.store.memberCount())
}

func TestAccept_Input(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com")
	ctx := context.Background()

	_, err := f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Password: "short", PasswordConfirmation: "short"})
	require.Equal(t, passwords.ErrTooShort.Error(), fields(t, err)["password"])

	_, err = f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Password: "Secret123", PasswordConfirmation: "Secret124"})
	require.Equal(t, passwords.ErrMismatch.Error(), fields(t, err)["password"])

	_, err = f.accept("", "Secret123")
	require.ErrorIs(t, err, ErrInvalidLink)
	_, err = f.accept("no-such-token", "Secret123")
	require.ErrorIs(t, err, ErrInvalidLink)
	_, err = f.accept("no-such-token", "x")
	require.ErrorIs(t, err, ErrInvalidLink)

	require.Zero(t, f.store.userCount())
}

func TestResend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "Jane", "jane@acme.com")

	f.clock = f.clock.Add(38 * time.Hour)
	got, err := f.svc.Resend(ctx, f.owner, f.agency, inv.ID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Add(48*time.Hour), got.ExpiresAt)
	stored, err := f.store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Add(48*time.Hour), stored.ExpiresAt)
	require.True(t, f.notifier.last().Resend)
	require.Equal(t, got.ExpiresAt, f.notifier.last().Invitation.ExpiresAt)

	f.clock = f.clock.Add(100 * time.Hour)
	require.Equal(t, StateExpired, Classify(stored, f.clock))
	_, err = f.svc.Resend(ctx, f.owner, f.agency, inv.ID)
	require.NoError(t, err)
	_, err = f.accept(inv.Token, "Secret123")
	require.NoError(t, err)
}

func TestResend_NeverShortens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	inv := f.issue(t, "Jane", "jane@acme.com")
	f.svc.cfg.TTL = time.Hour

	got, err := f.svc.Resend(context.Background(), f.owner, f.agency, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.ExpiresAt, got.ExpiresAt)
}

func TestResend_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "Jane", "jane@acme.com")

	_, err := f.svc.Resend(ctx, f.delegate, f.agency, inv.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Resend(ctx, f.member, f.agency, inv.ID)
	require.ErrorIs(t, err, ErrForbidden)

	other := &models.Agency{ID: uuid.New(), OwnerID: f.owner.UserID}
	_, err = f.svc.Resend(ctx, f.owner, other, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Resend(ctx, f.owner, f.agency, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.accept(inv.Token, "Secret123")
	require.NoError(t, err)
	before, err := f.store.GetByID(ctx, inv.ID)
	require.NoError(t, err)

	f.clock = f.clock.Add(10 * time.Hour)
	_, err = f.svc.Resend(ctx, f.owner, f.agency, inv.ID)
	require.ErrorIs(t, err, ErrResendAccepted)
	after, err := f.store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, before.ExpiresAt, after.ExpiresAt)
}

func TestResend_DeliveryFailureKeepsExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "Jane", "jane@acme.com")

	f.clock = f.clock.Add(10 * time.Hour)
	f.notifier.err = errors.New("smtp down")
	got, err := f.svc.Resend(ctx, f.owner, f.agency, inv.ID)
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.NotNil(t, got)

	stored, err := f.store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Add(48*time.Hour), stored.ExpiresAt)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pending := f.issue(t, "Bob", "bob@acme.com")
	require.ErrorIs(t, f.svc.Cancel(ctx, f.member, f.agency, pending.ID), ErrForbidden)
	require.ErrorIs(t, f.svc.Cancel(ctx, policy.Actor{UserID: uuid.New()}, f.agency, pending.ID), ErrForbidden)

	foreign := policy.Actor{UserID: f.delegate.UserID, Membership: &models.AgencyMember{
		AgencyID: uuid.New(), UserID: f.delegate.UserID, Rights: []string{models.RightManageInvitations},
	}}
	require.ErrorIs(t, f.svc.Cancel(ctx, foreign, f.agency, pending.ID), ErrForbidden)

	require.NoError(t, f.svc.Cancel(ctx, f.delegate, f.agency, pending.ID))
	_, err := f.store.GetByID(ctx, pending.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.svc.Cancel(ctx, f.owner, f.agency, pending.ID), ErrNotFound)

	_, err = f.accept(pending.Token, "Secret123")
	require.ErrorIs(t, err, ErrInvalidLink)
}

func TestCancel_AcceptedIsKept(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	inv := f.issue(t, "Jane", "jane@acme.com")
	_, err := f.accept(inv.Token, "Secret123")
	require.NoError(t, err)

	err = f.svc.Cancel(ctx, f.owner, f.agency, inv.ID)
	require.ErrorIs(t, err, ErrDeleteAccepted)
	require.Equal(t, "Cannot delete an accepted invitation.", err.Error())

	_, err = f.store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
}

func TestList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	accepted := f.issue(t, "A", "a@acme.com")
	_, err := f.accept(accepted.Token, "Secret123")
	require.NoError(t, err)
	f.issue(t, "B", "b@acme.com")

	list, err := f.svc.List(ctx, f.member, f.agency)
	require.NoError(t, err)
	states := map[string]State{}
	for _, s := range list {
		states[s.Email] = s.State
	}
	require.Equal(t, map[string]State{"a@acme.com": StateAccepted, "b@acme.com": StateValid}, states)

	_, err = f.svc.List(ctx, policy.Actor{UserID: uuid.New()}, f.agency)
	require.ErrorIs(t, err, ErrForbidden)

	f.clock = f.clock.Add(49 * time.Hour)
	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, s := range all {
		if strings.HasPrefix(s.Email, "b@") {
			require.Equal(t, StateExpired, s.State)
		}
	}
}
