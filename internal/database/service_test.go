package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(t *testing.T) *UserService {
	t.Helper()
	return NewUserService(newTestRepo(t), "test-jwt-secret", 5)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("alice", "alice@example.com", "secret123", "Alice", "A")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "secret123", user.PasswordHash)

	authed, err := service.Authenticate("alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	service := newTestUserService(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "", "a@example.com", "pw"},
		{"empty email", "alice", "", "pw"},
		{"empty password", "alice", "a@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Register(tt.username, tt.email, tt.password, "", "")
			assert.Error(t, err)
		})
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service := newTestUserService(t)

	_, err := service.Register("bob", "bob@example.com", "pw123456", "", "")
	require.NoError(t, err)

	_, err = service.Register("bob", "other@example.com", "pw123456", "", "")
	assert.Error(t, err)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	service := newTestUserService(t)

	_, err := service.Register("carol", "carol@example.com", "correct-pw", "", "")
	require.NoError(t, err)

	_, err = service.Authenticate("carol", "wrong-pw")
	assert.Error(t, err)

	_, err = service.Authenticate("nobody", "whatever")
	assert.Error(t, err)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("dave", "dave@example.com", "pw123456", "", "")
	require.NoError(t, err)

	token, err := service.GenerateSessionToken(user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := service.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestValidateSessionTokenRejectsGarbage(t *testing.T) {
	service := newTestUserService(t)

	_, err := service.ValidateSessionToken("not-a-jwt")
	assert.Error(t, err)
}

func TestValidateSessionTokenRejectsWrongSecret(t *testing.T) {
	repo := newTestRepo(t)
	issuer := NewUserService(repo, "secret-one", 5)
	verifier := NewUserService(repo, "secret-two", 5)

	user, err := issuer.Register("erin", "erin@example.com", "pw123456", "", "")
	require.NoError(t, err)

	token, err := issuer.GenerateSessionToken(user.ID)
	require.NoError(t, err)

	_, err = verifier.ValidateSessionToken(token)
	assert.Error(t, err)
}

func TestProcessRequestEnforcesWeeklyQuota(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("frank", "frank@example.com", "pw123456", "", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		result, err := service.ProcessRequest(user.ID, "127.0.0.1", "test-agent", "/api/predict", "POST")
		require.NoError(t, err)
		assert.True(t, result.CanMakeRequest, "request %d should be allowed", i+1)
		assert.True(t, result.RequestLogged)
	}

	result, err := service.ProcessRequest(user.ID, "127.0.0.1", "test-agent", "/api/predict", "POST")
	require.NoError(t, err)
	assert.False(t, result.CanMakeRequest)
	assert.False(t, result.RequestLogged)
	assert.Equal(t, 5, result.Usage.RequestsThisWeek)

	remaining, err := service.GetRemainingRequests(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestProcessRequestHonorsConfiguredLimit(t *testing.T) {
	service := NewUserService(newTestRepo(t), "test-jwt-secret", 2)
	assert.Equal(t, 2, service.FreeLimit())

	user, err := service.Register("fred", "fred@example.com", "pw123456", "", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
		require.NoError(t, err)
		assert.True(t, result.CanMakeRequest, "request %d should be allowed", i+1)
	}

	result, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
	require.NoError(t, err)
	assert.False(t, result.CanMakeRequest)

	// Non-positive limits fall back to the default
	fallback := NewUserService(newTestRepo(t), "test-jwt-secret", 0)
	assert.Equal(t, 5, fallback.FreeLimit())
}

func TestProcessRequestUnknownUser(t *testing.T) {
	service := newTestUserService(t)

	_, err := service.ProcessRequest("missing-user", "127.0.0.1", "agent", "/api/predict", "POST")
	assert.Error(t, err)
}

func TestUpgradeUserToPaidUnlocksQuota(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("grace", "grace@example.com", "pw123456", "", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
		require.NoError(t, err)
	}

	blocked, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
	require.NoError(t, err)
	require.False(t, blocked.CanMakeRequest)

	require.NoError(t, service.UpgradeUserToPaid(user.ID, "cus_upgrade"))

	allowed, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
	require.NoError(t, err)
	assert.True(t, allowed.CanMakeRequest)

	remaining, err := service.GetRemainingRequests(user.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)
}

func TestGetUserStats(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("heidi", "heidi@example.com", "pw123456", "", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := service.ProcessRequest(user.ID, "127.0.0.1", "agent", "/api/predict", "POST")
		require.NoError(t, err)
	}

	stats, err := service.GetUserStats(user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, stats.UserID)
	assert.Equal(t, 2, stats.RequestsThisWeek)
	assert.Equal(t, 3, stats.RemainingRequests)
	assert.False(t, stats.IsPaid)
}

func TestCreatePaymentRecord(t *testing.T) {
	service := newTestUserService(t)

	user, err := service.Register("ivan", "ivan@example.com", "pw123456", "", "")
	require.NoError(t, err)

	payment, err := service.CreatePaymentRecord(user.ID, "cs_test_abc", "usd", "completed", "subscription", 900)
	require.NoError(t, err)

	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, int64(900), payment.Amount)
	assert.Equal(t, "subscription", payment.Type)
}
