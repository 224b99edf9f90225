package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"authgate/internal/app/notify"
	"authgate/internal/common"
	"authgate/internal/common/security"
	"authgate/internal/domain/repository"
	"authgate/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	config.Load()
	security.InitJWT()
	m.Run()
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *fakeNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *fakeNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages, "expected at least one mail")
	return n.messages[len(n.messages)-1]
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// tokenFromMail pulls the raw single-use token out of the link embedded in a
// mail body.
func tokenFromMail(t *testing.T, body, route string) string {
	t.Helper()
	idx := strings.Index(body, route+"/")
	require.GreaterOrEqual(t, idx, 0, "mail body should contain a %s link", route)
	rest := body[idx+len(route)+1:]
	if end := strings.IndexAny(rest, " \n\r\t"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func newTestService() (*AuthService, *repository.MemoryAccountRepository, *fakeNotifier) {
	repo := repository.NewMemoryAccountRepository()
	mailer := &fakeNotifier{}
	return NewAuthService(repo, mailer), repo, mailer
}

func register(t *testing.T, svc *AuthService, email, username, password string) {
	t.Helper()
	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
}

func TestRegister_Success(t *testing.T) {
	svc, repo, mailer := newTestService()

	account, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "a@x.com",
		Username: "alice",
		Password: "Secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "a@x.com", account.Email)
	assert.Equal(t, "user", account.Role)
	assert.False(t, account.IsEmailVerified)
	assert.NotEqual(t, "Secret1", account.HashedPassword, "password must be stored hashed")

	stored, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.EmailVerificationToken)
	assert.True(t, stored.EmailVerificationExpiry.After(time.Now()))

	msg := mailer.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	raw := tokenFromMail(t, msg.Body, "verify-email")
	assert.Equal(t, stored.EmailVerificationToken, security.HashToken(raw),
		"only the digest of the mailed token may be persisted")
	assert.NotContains(t, msg.Body, stored.EmailVerificationToken,
		"the stored digest must not appear in the mail")
}

func TestRegister_NormalizesCase(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "Bob@X.com", "BOB", "Secret1")

	stored, err := repo.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", stored.Email)
}

func TestRegister_DuplicateYieldsConflict(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "other@x.com", Username: "alice", Password: "Secret1",
	})
	assert.ErrorIs(t, err, common.ErrConflict, "duplicate username")

	_, err = svc.Register(context.Background(), RegisterRequest{
		Email: "a@x.com", Username: "other", Password: "Secret1",
	})
	assert.ErrorIs(t, err, common.ErrConflict, "duplicate email")
}

func TestLogin_Success(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	for _, identifier := range []string{"alice", "a@x.com"} {
		resp, err := svc.Login(context.Background(), LoginRequest{Identifier: identifier, Password: "Secret1"})
		require.NoError(t, err, "login via %s", identifier)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "alice", resp.Account.Username)

		stored, err := repo.FindByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, resp.RefreshToken, stored.RefreshToken, "issued refresh token must be persisted")
	}
}

func TestLogin_WrongPasswordAndUnknownAccountLookAlike(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	_, errWrong := svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "nope"})
	_, errUnknown := svc.Login(context.Background(), LoginRequest{Identifier: "nobody", Password: "nope"})

	assert.ErrorIs(t, errWrong, common.ErrUnauthorized)
	assert.ErrorIs(t, errUnknown, common.ErrUnauthorized)
	assert.Equal(t, errWrong.Error(), errUnknown.Error(),
		"error must not reveal whether the account exists")
}

func TestRefreshAccessToken_RotatesAndRejectsReplay(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	resp, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "Secret1"})
	require.NoError(t, err)

	pair, err := svc.RefreshAccessToken(context.Background(), resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, resp.RefreshToken, pair.RefreshToken, "rotation must issue a new refresh token")

	// The pre-rotation token is no longer exchangeable.
	_, err = svc.RefreshAccessToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	// The rotated one still is.
	_, err = svc.RefreshAccessToken(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshAccessToken_RejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RefreshAccessToken(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = svc.RefreshAccessToken(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestLogout_RevokesRefreshAndIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	resp, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "Secret1"})
	require.NoError(t, err)

	stored, _ := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, svc.Logout(context.Background(), stored.ID))
	require.NoError(t, svc.Logout(context.Background(), stored.ID), "logout twice must not fail")
	require.NoError(t, svc.Logout(context.Background(), "no-such-account"), "logout of unknown id must not fail")

	_, err = svc.RefreshAccessToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized, "refresh after logout")
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	svc, repo, mailer := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	raw := tokenFromMail(t, mailer.last(t).Body, "verify-email")

	account, err := svc.VerifyEmail(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, account.IsEmailVerified)

	stored, _ := repo.FindByUsername(context.Background(), "alice")
	assert.True(t, stored.IsEmailVerified)
	assert.Empty(t, stored.EmailVerificationToken, "token must be cleared on use")

	_, err = svc.VerifyEmail(context.Background(), raw)
	assert.ErrorIs(t, err, common.ErrGone, "second use of the same token")
}

func TestVerifyEmail_ExpiredOrUnknown(t *testing.T) {
	svc, repo, mailer := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	_, err := svc.VerifyEmail(context.Background(), "bogus")
	assert.ErrorIs(t, err, common.ErrGone)

	// Force the stored expiry into the past; the mailed token must stop working.
	raw := tokenFromMail(t, mailer.last(t).Body, "verify-email")
	stored, _ := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, repo.SetVerificationToken(context.Background(), stored.ID,
		security.HashToken(raw), time.Now().Add(-time.Minute)))

	_, err = svc.VerifyEmail(context.Background(), raw)
	assert.ErrorIs(t, err, common.ErrGone)
}

func TestResendEmailVerification(t *testing.T) {
	svc, repo, mailer := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")
	stored, _ := repo.FindByUsername(context.Background(), "alice")

	require.NoError(t, svc.ResendEmailVerification(context.Background(), stored.ID))
	assert.Equal(t, 2, mailer.count())

	// The resend invalidates the first token.
	first := tokenFromMail(t, mailer.messages[0].Body, "verify-email")
	second := tokenFromMail(t, mailer.last(t).Body, "verify-email")
	require.NotEqual(t, first, second)
	_, err := svc.VerifyEmail(context.Background(), first)
	assert.ErrorIs(t, err, common.ErrGone)

	_, err = svc.VerifyEmail(context.Background(), second)
	require.NoError(t, err)

	err = svc.ResendEmailVerification(context.Background(), stored.ID)
	assert.ErrorIs(t, err, common.ErrConflict, "resend for a verified account")
}

func TestForgotPassword_ConstantShape(t *testing.T) {
	svc, _, mailer := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	require.NoError(t, svc.ForgotPassword(context.Background(), "nobody@x.com"),
		"unknown email must not error")
	assert.Equal(t, 1, mailer.count(), "no reset mail for unknown email (register mail only)")

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	assert.Equal(t, 2, mailer.count())
}

func TestResetPassword_FullFlow(t *testing.T) {
	svc, repo, mailer := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")

	resp, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "Secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	raw := tokenFromMail(t, mailer.last(t).Body, "reset-password")

	require.NoError(t, svc.ResetPassword(context.Background(), raw, "NewSecret2"))

	// Old password rejected, new accepted.
	_, err = svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "Secret1"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "NewSecret2"})
	assert.NoError(t, err)

	// Reset token is single-use.
	err = svc.ResetPassword(context.Background(), raw, "Another3")
	assert.ErrorIs(t, err, common.ErrGone)

	// Pre-reset refresh token was invalidated.
	_, err = svc.RefreshAccessToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	stored, _ := repo.FindByUsername(context.Background(), "alice")
	assert.Empty(t, stored.ForgotPasswordToken)
}

func TestChangeCurrentPassword(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")
	stored, _ := repo.FindByUsername(context.Background(), "alice")

	err := svc.ChangeCurrentPassword(context.Background(), stored.ID, "wrong", "NewSecret2")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	require.NoError(t, svc.ChangeCurrentPassword(context.Background(), stored.ID, "Secret1", "NewSecret2"))
	_, err = svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "NewSecret2"})
	assert.NoError(t, err)
}

func TestCurrentUser(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "a@x.com", "alice", "Secret1")
	stored, _ := repo.FindByUsername(context.Background(), "alice")

	account, err := svc.CurrentUser(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)

	_, err = svc.CurrentUser(context.Background(), "no-such-account")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
