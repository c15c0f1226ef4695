package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a new user row.
func (r *Repository) CreateUser(user *User) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			is_active, is_paid, stripe_customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.IsActive, user.IsPaid, user.StripeID, user.CreatedAt, user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByUsername looks a user up by username.
func (r *Repository) GetUserByUsername(username string) (*User, error) {
	stmt, err := r.db.GetPreparedStatement("get_user_by_username")
	if err != nil {
		return nil, err
	}

	var user User
	err = stmt.QueryRow(username).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.IsActive, &user.IsPaid,
		&user.StripeID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetUserByID looks a user up by ID.
func (r *Repository) GetUserByID(id string) (*User, error) {
	var user User
	err := r.db.QueryRow(`
		SELECT id, username, email, password_hash, first_name, last_name,
			is_active, is_paid, stripe_customer_id, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.IsActive, &user.IsPaid,
		&user.StripeID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// CreateApplication inserts a loan application row.
func (r *Repository) CreateApplication(app *LoanApplication) error {
	stmt, err := r.db.GetPreparedStatement("insert_application")
	if err != nil {
		return err
	}

	userID := sql.NullString{String: app.UserID, Valid: app.UserID != ""}

	_, err = stmt.Exec(
		app.ID, userID, app.CreditShort, app.CreditLong, app.CPH, app.CTL,
		app.APH, app.ATL, app.QuarterFluctuation, app.TimeLimitation,
		app.ResidualFluctuation, app.RequestedAmount, app.LoanPurpose,
		app.EmploymentStatus, app.AnnualIncome, app.Status, app.ApplicationDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

// GetApplication retrieves a single application by ID.
func (r *Repository) GetApplication(id string) (*LoanApplication, error) {
	stmt, err := r.db.GetPreparedStatement("get_application")
	if err != nil {
		return nil, err
	}

	var app LoanApplication
	var userID sql.NullString

	err = stmt.QueryRow(id).Scan(
		&app.ID, &userID, &app.CreditShort, &app.CreditLong, &app.CPH, &app.CTL,
		&app.APH, &app.ATL, &app.QuarterFluctuation, &app.TimeLimitation,
		&app.ResidualFluctuation, &app.RequestedAmount, &app.LoanPurpose,
		&app.EmploymentStatus, &app.AnnualIncome, &app.Status, &app.ApplicationDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query application: %w", err)
	}

	app.UserID = userID.String
	return &app, nil
}

// GetApplicationsByUser lists a user's applications, newest first.
func (r *Repository) GetApplicationsByUser(userID string, limit int) ([]LoanApplication, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, user_id, credit_short, credit_long, cph, ctl, aph, atl,
			quarter_fluctuation, time_limitation, residual_fluctuation,
			requested_amount, loan_purpose, employment_status, annual_income,
			status, application_date
		FROM loan_applications
		WHERE user_id = ?
		ORDER BY application_date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []LoanApplication
	for rows.Next() {
		var app LoanApplication
		var uid sql.NullString

		err := rows.Scan(
			&app.ID, &uid, &app.CreditShort, &app.CreditLong, &app.CPH, &app.CTL,
			&app.APH, &app.ATL, &app.QuarterFluctuation, &app.TimeLimitation,
			&app.ResidualFluctuation, &app.RequestedAmount, &app.LoanPurpose,
			&app.EmploymentStatus, &app.AnnualIncome, &app.Status, &app.ApplicationDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}

		app.UserID = uid.String
		apps = append(apps, app)
	}

	return apps, nil
}

// UpdateApplicationStatus moves an application through its lifecycle.
func (r *Repository) UpdateApplicationStatus(id, status string) error {
	result, err := r.db.Exec(`UPDATE loan_applications SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("application %s not found", id)
	}

	return nil
}

// SavePrediction inserts a prediction row and marks its application processed.
func (r *Repository) SavePrediction(p *Prediction) error {
	stmt, err := r.db.GetPreparedStatement("insert_prediction")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		p.ID, p.ApplicationID,
		p.XGBoostClass, p.XGBoostConf,
		p.RandomForestClass, p.RandomForestConf,
		p.LogisticClass, p.LogisticConf,
		p.KNNClass, p.KNNConf,
		p.FinalPrediction, p.FinalConfidence, p.ModelVersion, p.ProcessingTimeMs,
		p.PredictionDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	if err := r.UpdateApplicationStatus(p.ApplicationID, "processed"); err != nil {
		return err
	}

	return nil
}

// GetPredictionByApplication retrieves the latest prediction for an application.
func (r *Repository) GetPredictionByApplication(applicationID string) (*Prediction, error) {
	stmt, err := r.db.GetPreparedStatement("get_prediction_by_application")
	if err != nil {
		return nil, err
	}

	var p Prediction
	err = stmt.QueryRow(applicationID).Scan(
		&p.ID, &p.ApplicationID,
		&p.XGBoostClass, &p.XGBoostConf,
		&p.RandomForestClass, &p.RandomForestConf,
		&p.LogisticClass, &p.LogisticConf,
		&p.KNNClass, &p.KNNConf,
		&p.FinalPrediction, &p.FinalConfidence, &p.ModelVersion, &p.ProcessingTimeMs,
		&p.PredictionDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction: %w", err)
	}

	return &p, nil
}

// LogRequest logs an API request
func (r *Repository) LogRequest(userID, ipAddress, endpoint, method, userAgent string) error {
	stmt, err := r.db.GetPreparedStatement("insert_request_log")
	if err != nil {
		return err
	}

	reqLog := NewRequestLog(userID, ipAddress, endpoint, method, userAgent)
	_, err = stmt.Exec(reqLog.ID, reqLog.UserID, reqLog.IPAddress, reqLog.Endpoint,
		reqLog.Method, reqLog.UserAgent, reqLog.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}

	return nil
}

// GetWeeklyUsage gets usage statistics for a user for the current week
func (r *Repository) GetWeeklyUsage(userID string) (*UsageStats, error) {
	now := time.Now()

	// Get the start of the current week (Monday)
	weekStart := now.AddDate(0, 0, -int(now.Weekday()-time.Monday))
	if now.Weekday() == time.Sunday {
		weekStart = weekStart.AddDate(0, 0, -7)
	}
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, weekStart.Location())

	weekEnd := weekStart.AddDate(0, 0, 7)

	var requestCount int
	var isPaid bool

	err := r.db.QueryRow(`SELECT is_paid FROM users WHERE id = ?`, userID).Scan(&isPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to get user payment status: %w", err)
	}

	err = r.db.QueryRow(`
		SELECT COUNT(*) FROM request_logs
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
	`, userID, weekStart, weekEnd).Scan(&requestCount)

	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	return &UsageStats{
		UserID:           userID,
		RequestsThisWeek: requestCount,
		WeekStart:        weekStart,
		WeekEnd:          weekEnd,
		IsPaid:           isPaid,
	}, nil
}

// CanMakeRequest checks if a user can make another prediction this week
func (r *Repository) CanMakeRequest(userID string, freeLimit int) (bool, *UsageStats, error) {
	usage, err := r.GetWeeklyUsage(userID)
	if err != nil {
		return false, nil, err
	}

	// Paid users have unlimited access
	if usage.IsPaid {
		return true, usage, nil
	}

	return usage.RequestsThisWeek < freeLimit, usage, nil
}

// UpdateUserPaymentStatus updates a user's payment status
func (r *Repository) UpdateUserPaymentStatus(userID string, isPaid bool, stripeCustomerID string) error {
	_, err := r.db.Exec(`
		UPDATE users SET is_paid = ?, stripe_customer_id = ?, updated_at = ?
		WHERE id = ?
	`, isPaid, stripeCustomerID, time.Now(), userID)

	if err != nil {
		return fmt.Errorf("failed to update user payment status: %w", err)
	}

	return nil
}

// CreatePayment creates a payment record
func (r *Repository) CreatePayment(payment *Payment) error {
	_, err := r.db.Exec(`
		INSERT INTO payments (id, user_id, stripe_payment_id, amount, currency, status, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.ID, payment.UserID, payment.StripePaymentID, payment.Amount,
		payment.Currency, payment.Status, payment.Type, payment.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetUserByStripeCustomerID gets a user by their Stripe customer ID
func (r *Repository) GetUserByStripeCustomerID(stripeCustomerID string) (*User, error) {
	var user User
	err := r.db.QueryRow(`
		SELECT id, username, email, password_hash, first_name, last_name,
			is_active, is_paid, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE stripe_customer_id = ?
	`, stripeCustomerID).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.IsActive, &user.IsPaid,
		&user.StripeID, &user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get user by stripe customer ID: %w", err)
	}

	return &user, nil
}
