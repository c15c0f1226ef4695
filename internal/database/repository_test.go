package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loansight/loansight/internal/prediction"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func createTestUser(t *testing.T, repo *Repository, username string) *User {
	t.Helper()

	user := NewUser(username, username+"@example.com", HashPassword("secret123"), "Test", "User")
	require.NoError(t, repo.CreateUser(user))
	return user
}

func TestCreateAndGetUser(t *testing.T) {
	repo := newTestRepo(t)
	created := createTestUser(t, repo, "alice")

	byUsername, err := repo.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, byUsername)
	assert.Equal(t, created.ID, byUsername.ID)
	assert.Equal(t, "alice@example.com", byUsername.Email)
	assert.True(t, byUsername.IsActive)
	assert.False(t, byUsername.IsPaid)

	byID, err := repo.GetUserByID(created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice", byID.Username)
}

func TestGetUserNotFound(t *testing.T) {
	repo := newTestRepo(t)

	user, err := repo.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	createTestUser(t, repo, "bob")

	dup := NewUser("bob", "other@example.com", HashPassword("pw"), "", "")
	assert.Error(t, repo.CreateUser(dup))
}

func TestApplicationRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "carol")

	app := NewLoanApplication(user.ID, prediction.ApplicationFeatures{
		CreditShort:        1,
		CreditLong:         1,
		CPH:                0.5,
		QuarterFluctuation: 2,
	}, ApplicationDetails{})
	require.NoError(t, repo.CreateApplication(app))

	loaded, err := repo.GetApplication(app.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, user.ID, loaded.UserID)
	assert.Equal(t, 1.0, loaded.CreditShort)
	assert.Equal(t, 0.5, loaded.CPH)
	assert.Equal(t, "pending", loaded.Status)

	// Absent details take the defaults
	assert.Equal(t, 50000.0, loaded.RequestedAmount)
	assert.Equal(t, "Personal", loaded.LoanPurpose)
	assert.Equal(t, "Employed", loaded.EmploymentStatus)
	assert.Equal(t, 60000.0, loaded.AnnualIncome)
	assert.Nil(t, loaded.TimeLimitation)
	assert.Nil(t, loaded.ResidualFluctuation)
}

func TestApplicationDetailsPersisted(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "carla")

	amount := 120000.0
	income := 85000.0
	timeLim := 1.0
	residual := -0.5

	app := NewLoanApplication(user.ID, prediction.ApplicationFeatures{CreditShort: 1}, ApplicationDetails{
		TimeLimitation:      &timeLim,
		ResidualFluctuation: &residual,
		RequestedAmount:     &amount,
		LoanPurpose:         "Business",
		EmploymentStatus:    "Self-Employed",
		AnnualIncome:        &income,
	})
	require.NoError(t, repo.CreateApplication(app))

	loaded, err := repo.GetApplication(app.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, 120000.0, loaded.RequestedAmount)
	assert.Equal(t, "Business", loaded.LoanPurpose)
	assert.Equal(t, "Self-Employed", loaded.EmploymentStatus)
	assert.Equal(t, 85000.0, loaded.AnnualIncome)

	require.NotNil(t, loaded.TimeLimitation)
	assert.Equal(t, 1.0, *loaded.TimeLimitation)
	require.NotNil(t, loaded.ResidualFluctuation)
	assert.Equal(t, -0.5, *loaded.ResidualFluctuation)
}

func TestApplicationDetailsExplicitZeroKept(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "cesar")

	zero := 0.0
	app := NewLoanApplication(user.ID, prediction.ApplicationFeatures{CreditShort: 1}, ApplicationDetails{
		RequestedAmount: &zero,
		AnnualIncome:    &zero,
	})
	require.NoError(t, repo.CreateApplication(app))

	loaded, err := repo.GetApplication(app.ID)
	require.NoError(t, err)

	// An explicit zero is a submitted value, not an absent one
	assert.Equal(t, 0.0, loaded.RequestedAmount)
	assert.Equal(t, 0.0, loaded.AnnualIncome)
}

func TestAnonymousApplicationHasNoUser(t *testing.T) {
	repo := newTestRepo(t)

	app := NewLoanApplication("", prediction.ApplicationFeatures{CreditShort: 1}, ApplicationDetails{})
	require.NoError(t, repo.CreateApplication(app))

	loaded, err := repo.GetApplication(app.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.UserID)
}

func TestGetApplicationMissing(t *testing.T) {
	repo := newTestRepo(t)

	app, err := repo.GetApplication("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestGetApplicationsByUserOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "dave")

	for i := 0; i < 5; i++ {
		app := NewLoanApplication(user.ID, prediction.ApplicationFeatures{CreditShort: float64(i)}, ApplicationDetails{})
		require.NoError(t, repo.CreateApplication(app))
	}

	apps, err := repo.GetApplicationsByUser(user.ID, 3)
	require.NoError(t, err)
	assert.Len(t, apps, 3)

	all, err := repo.GetApplicationsByUser(user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSavePredictionMarksApplicationProcessed(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "erin")

	app := NewLoanApplication(user.ID, prediction.ApplicationFeatures{CreditShort: 1}, ApplicationDetails{})
	require.NoError(t, repo.CreateApplication(app))

	result := &prediction.PredictionResult{
		FinalPrediction: prediction.VeryGood,
		FinalConfidence: 95.0,
		ModelVotes: map[string]prediction.ModelVote{
			"xgboost": {Prediction: prediction.VeryGood, Confidence: 97},
			"knn":     {Prediction: prediction.VeryGood, Confidence: 93},
		},
	}

	pred := NewPrediction(app.ID, result)
	require.NoError(t, repo.SavePrediction(pred))

	loaded, err := repo.GetPredictionByApplication(app.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "Very_Good", loaded.FinalPrediction)
	assert.Equal(t, 95.0, loaded.FinalConfidence)

	require.NotNil(t, loaded.XGBoostConf)
	assert.Equal(t, 97.0, *loaded.XGBoostConf)

	// Models without a vote stay null
	assert.Nil(t, loaded.LogisticClass)

	updated, err := repo.GetApplication(app.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", updated.Status)
}

func TestGetPredictionMissing(t *testing.T) {
	repo := newTestRepo(t)

	pred, err := repo.GetPredictionByApplication("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestWeeklyUsageCountsRequests(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "frank")

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.LogRequest(user.ID, "127.0.0.1", "/api/predict", "POST", "test-agent"))
	}

	usage, err := repo.GetWeeklyUsage(user.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, usage.RequestsThisWeek)
	assert.False(t, usage.IsPaid)
	assert.True(t, usage.WeekEnd.After(usage.WeekStart))
}

func TestCanMakeRequestFreeLimit(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "grace")

	for i := 0; i < 5; i++ {
		ok, _, err := repo.CanMakeRequest(user.ID, 5)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
		require.NoError(t, repo.LogRequest(user.ID, "127.0.0.1", "/api/predict", "POST", "test-agent"))
	}

	ok, usage, err := repo.CanMakeRequest(user.ID, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, usage.RequestsThisWeek)
}

func TestCanMakeRequestPaidUnlimited(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "heidi")

	require.NoError(t, repo.UpdateUserPaymentStatus(user.ID, true, "cus_test123"))

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.LogRequest(user.ID, "127.0.0.1", "/api/predict", "POST", "test-agent"))
	}

	ok, usage, err := repo.CanMakeRequest(user.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, usage.IsPaid)
}

func TestPaymentAndStripeLookup(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "ivan")

	require.NoError(t, repo.UpdateUserPaymentStatus(user.ID, true, "cus_abc"))

	payment := &Payment{
		ID:              "pay-1",
		UserID:          user.ID,
		StripePaymentID: "cs_test_123",
		Amount:          900,
		Currency:        "usd",
		Status:          "completed",
		Type:            "subscription",
		CreatedAt:       user.CreatedAt,
	}
	require.NoError(t, repo.CreatePayment(payment))

	found, err := repo.GetUserByStripeCustomerID("cus_abc")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.True(t, found.IsPaid)
}
