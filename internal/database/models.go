package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/loansight/loansight/internal/prediction"
)

// User represents a registered account
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name,omitempty" db:"first_name"`
	LastName     string    `json:"last_name,omitempty" db:"last_name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	IsPaid       bool      `json:"is_paid" db:"is_paid"`
	StripeID     string    `json:"-" db:"stripe_customer_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// LoanApplication represents a submitted application with its features
type LoanApplication struct {
	ID                  string    `json:"id" db:"id"`
	UserID              string    `json:"user_id,omitempty" db:"user_id"`
	CreditShort         float64   `json:"credit_short" db:"credit_short"`
	CreditLong          float64   `json:"credit_long" db:"credit_long"`
	CPH                 float64   `json:"cph" db:"cph"`
	CTL                 float64   `json:"ctl" db:"ctl"`
	APH                 float64   `json:"aph" db:"aph"`
	ATL                 float64   `json:"atl" db:"atl"`
	QuarterFluctuation  float64   `json:"quarter_fluctuation" db:"quarter_fluctuation"`
	TimeLimitation      *float64  `json:"time_limitation,omitempty" db:"time_limitation"`
	ResidualFluctuation *float64  `json:"residual_fluctuation,omitempty" db:"residual_fluctuation"`
	RequestedAmount     float64   `json:"requested_amount" db:"requested_amount"`
	LoanPurpose         string    `json:"loan_purpose" db:"loan_purpose"`
	EmploymentStatus    string    `json:"employment_status" db:"employment_status"`
	AnnualIncome        float64   `json:"annual_income" db:"annual_income"`
	Status              string    `json:"status" db:"status"`
	ApplicationDate     time.Time `json:"application_date" db:"application_date"`
}

// Prediction represents a stored prediction for an application
type Prediction struct {
	ID                string    `json:"id" db:"id"`
	ApplicationID     string    `json:"application_id" db:"application_id"`
	XGBoostClass      *string   `json:"xgboost_prediction,omitempty" db:"xgboost_prediction"`
	XGBoostConf       *float64  `json:"xgboost_confidence,omitempty" db:"xgboost_confidence"`
	RandomForestClass *string   `json:"random_forest_prediction,omitempty" db:"random_forest_prediction"`
	RandomForestConf  *float64  `json:"random_forest_confidence,omitempty" db:"random_forest_confidence"`
	LogisticClass     *string   `json:"logistic_prediction,omitempty" db:"logistic_prediction"`
	LogisticConf      *float64  `json:"logistic_confidence,omitempty" db:"logistic_confidence"`
	KNNClass          *string   `json:"knn_prediction,omitempty" db:"knn_prediction"`
	KNNConf           *float64  `json:"knn_confidence,omitempty" db:"knn_confidence"`
	FinalPrediction   string    `json:"final_prediction" db:"final_prediction"`
	FinalConfidence   float64   `json:"final_confidence" db:"final_confidence"`
	ModelVersion      string    `json:"model_version" db:"model_version"`
	ProcessingTimeMs  int64     `json:"processing_time_ms" db:"processing_time_ms"`
	PredictionDate    time.Time `json:"prediction_date" db:"prediction_date"`
}

// ModelPerformance represents one evaluation of a model
type ModelPerformance struct {
	ID             string    `json:"id" db:"id"`
	ModelName      string    `json:"model_name" db:"model_name"`
	Accuracy       float64   `json:"accuracy" db:"accuracy"`
	PrecisionScore float64   `json:"precision_score" db:"precision_score"`
	RecallScore    float64   `json:"recall_score" db:"recall_score"`
	F1Score        float64   `json:"f1_score" db:"f1_score"`
	RMSE           float64   `json:"rmse" db:"rmse"`
	DatasetSize    int       `json:"dataset_size" db:"dataset_size"`
	Notes          string    `json:"notes,omitempty" db:"notes"`
	EvaluationDate time.Time `json:"evaluation_date" db:"evaluation_date"`
}

// RequestLog tracks API requests for the weekly quota
type RequestLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	IPAddress string    `json:"-" db:"ip_address"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payment represents a completed checkout
type Payment struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	StripePaymentID string    `json:"stripe_payment_id" db:"stripe_payment_id"`
	Amount          int64     `json:"amount" db:"amount"` // Amount in cents
	Currency        string    `json:"currency" db:"currency"`
	Status          string    `json:"status" db:"status"`
	Type            string    `json:"type" db:"type"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// UsageStats represents weekly usage statistics
type UsageStats struct {
	UserID           string    `json:"user_id"`
	RequestsThisWeek int       `json:"requests_this_week"`
	WeekStart        time.Time `json:"week_start"`
	WeekEnd          time.Time `json:"week_end"`
	IsPaid           bool      `json:"is_paid"`
}

// NewUser creates a new user with generated ID
func NewUser(username, email, passwordHash, firstName, lastName string) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
		IsPaid:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplicationDetails carries the optional metadata submitted alongside the
// scoring features. Nil or empty fields fall back to the column defaults.
type ApplicationDetails struct {
	TimeLimitation      *float64
	ResidualFluctuation *float64
	RequestedAmount     *float64
	LoanPurpose         string
	EmploymentStatus    string
	AnnualIncome        *float64
}

// NewLoanApplication creates an application from normalized features and
// submitted details, defaulting the metadata only where absent.
func NewLoanApplication(userID string, f prediction.ApplicationFeatures, d ApplicationDetails) *LoanApplication {
	app := &LoanApplication{
		ID:                  uuid.New().String(),
		UserID:              userID,
		CreditShort:         f.CreditShort,
		CreditLong:          f.CreditLong,
		CPH:                 f.CPH,
		CTL:                 f.CTL,
		APH:                 f.APH,
		ATL:                 f.ATL,
		QuarterFluctuation:  f.QuarterFluctuation,
		TimeLimitation:      d.TimeLimitation,
		ResidualFluctuation: d.ResidualFluctuation,
		RequestedAmount:     50000,
		LoanPurpose:         "Personal",
		EmploymentStatus:    "Employed",
		AnnualIncome:        60000,
		Status:              "pending",
		ApplicationDate:     time.Now(),
	}

	if d.RequestedAmount != nil {
		app.RequestedAmount = *d.RequestedAmount
	}
	if d.LoanPurpose != "" {
		app.LoanPurpose = d.LoanPurpose
	}
	if d.EmploymentStatus != "" {
		app.EmploymentStatus = d.EmploymentStatus
	}
	if d.AnnualIncome != nil {
		app.AnnualIncome = *d.AnnualIncome
	}

	return app
}

// NewPrediction creates a prediction row from a service result.
func NewPrediction(applicationID string, result *prediction.PredictionResult) *Prediction {
	p := &Prediction{
		ID:               uuid.New().String(),
		ApplicationID:    applicationID,
		FinalPrediction:  string(result.FinalPrediction),
		FinalConfidence:  result.FinalConfidence,
		ModelVersion:     "1.0",
		ProcessingTimeMs: result.ProcessingTimeMs,
		PredictionDate:   time.Now(),
	}

	assign := func(name string, class **string, conf **float64) {
		if vote, ok := result.ModelVotes[name]; ok {
			c := string(vote.Prediction)
			v := vote.Confidence
			*class = &c
			*conf = &v
		}
	}

	assign("xgboost", &p.XGBoostClass, &p.XGBoostConf)
	assign("random_forest", &p.RandomForestClass, &p.RandomForestConf)
	assign("logistic", &p.LogisticClass, &p.LogisticConf)
	assign("knn", &p.KNNClass, &p.KNNConf)

	return p
}

// NewRequestLog creates a new request log entry
func NewRequestLog(userID, ipAddress, endpoint, method, userAgent string) *RequestLog {
	return &RequestLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		IPAddress: ipAddress,
		Endpoint:  endpoint,
		Method:    method,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
}
