package database

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserService provides business logic for accounts, sessions and quotas
type UserService struct {
	repo      *Repository
	jwtSecret []byte
	freeLimit int
}

// NewUserService creates a new user service. freeLimit is the weekly
// prediction quota for free-tier users; non-positive values fall back to 5.
func NewUserService(repo *Repository, jwtSecret string, freeLimit int) *UserService {
	if freeLimit <= 0 {
		freeLimit = 5
	}
	return &UserService{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		freeLimit: freeLimit,
	}
}

// FreeLimit returns the weekly free-tier quota.
func (s *UserService) FreeLimit() int {
	return s.freeLimit
}

// HashPassword returns the hex sha256 digest of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Register creates a new account. Username and email must be unused.
func (s *UserService) Register(username, email, password, firstName, lastName string) (*User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required")
	}

	existing, err := s.repo.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q already taken", username)
	}

	user := NewUser(username, email, HashPassword(password), firstName, lastName)
	if err := s.repo.CreateUser(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies credentials and returns the user on success.
func (s *UserService) Authenticate(username, password string) (*User, error) {
	user, err := s.repo.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("invalid credentials")
	}

	hash := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(user.PasswordHash)) != 1 {
		return nil, fmt.Errorf("invalid credentials")
	}

	return user, nil
}

// GenerateSessionToken generates a JWT token for the user session
func (s *UserService) GenerateSessionToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(), // 24 hour expiry
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the user ID
func (s *UserService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", fmt.Errorf("user_id not found in token")
		}
		return userID, nil
	}

	return "", fmt.Errorf("invalid token")
}

// RequestResult represents the outcome of a quota check
type RequestResult struct {
	User           *User       `json:"user"`
	Usage          *UsageStats `json:"usage"`
	CanMakeRequest bool        `json:"can_make_request"`
	RequestLogged  bool        `json:"request_logged"`
}

// ProcessRequest enforces the weekly quota for an authenticated prediction
// request and logs it when allowed.
func (s *UserService) ProcessRequest(userID, ipAddress, userAgent, endpoint, method string) (*RequestResult, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	canMakeRequest, usage, err := s.repo.CanMakeRequest(user.ID, s.freeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to check request limits: %w", err)
	}

	result := &RequestResult{
		User:           user,
		Usage:          usage,
		CanMakeRequest: canMakeRequest,
	}

	if canMakeRequest {
		if err := s.repo.LogRequest(user.ID, ipAddress, endpoint, method, userAgent); err != nil {
			return nil, fmt.Errorf("failed to log request: %w", err)
		}
		result.RequestLogged = true
	}

	return result, nil
}

// GetRemainingRequests returns the number of remaining requests for the user
func (s *UserService) GetRemainingRequests(userID string) (int, error) {
	usage, err := s.repo.GetWeeklyUsage(userID)
	if err != nil {
		return 0, err
	}

	if usage.IsPaid {
		return -1, nil // Unlimited for paid users
	}

	remaining := s.freeLimit - usage.RequestsThisWeek
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// UpgradeUserToPaid upgrades a user to paid status
func (s *UserService) UpgradeUserToPaid(userID, stripeCustomerID string) error {
	return s.repo.UpdateUserPaymentStatus(userID, true, stripeCustomerID)
}

// CreatePaymentRecord creates a payment record in the database
func (s *UserService) CreatePaymentRecord(userID, stripePaymentID, currency, status, paymentType string, amount int64) (*Payment, error) {
	payment := &Payment{
		ID:              uuid.New().String(),
		UserID:          userID,
		StripePaymentID: stripePaymentID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Type:            paymentType,
		CreatedAt:       time.Now(),
	}

	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, err
	}

	return payment, nil
}

// UserStats represents comprehensive user statistics
type UserStats struct {
	UserID            string    `json:"user_id"`
	RequestsThisWeek  int       `json:"requests_this_week"`
	RemainingRequests int       `json:"remaining_requests"` // -1 for unlimited
	IsPaid            bool      `json:"is_paid"`
	WeekStart         time.Time `json:"week_start"`
	WeekEnd           time.Time `json:"week_end"`
}

// GetUserStats returns comprehensive user statistics
func (s *UserService) GetUserStats(userID string) (*UserStats, error) {
	usage, err := s.repo.GetWeeklyUsage(userID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.GetRemainingRequests(userID)
	if err != nil {
		return nil, err
	}

	return &UserStats{
		UserID:            userID,
		RequestsThisWeek:  usage.RequestsThisWeek,
		RemainingRequests: remaining,
		IsPaid:            usage.IsPaid,
		WeekStart:         usage.WeekStart,
		WeekEnd:           usage.WeekEnd,
	}, nil
}
