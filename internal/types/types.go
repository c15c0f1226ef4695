package types

// PredictRequest is the request body for the predict endpoint. The
// application fields are optional and only affect the persisted row,
// never the score; absent numeric fields fall back to defaults, so they
// are pointers to tell "absent" from an explicit zero.
type PredictRequest struct {
	Features            map[string]interface{} `json:"features" binding:"required"`
	ServiceType         string                 `json:"serviceType"`
	SelectedModels      []string               `json:"selectedModels"`
	TimeLimitation      *float64               `json:"timeLimitation"`
	ResidualFluctuation *float64               `json:"residualFluctuation"`
	RequestedAmount     *float64               `json:"requestedAmount"`
	LoanPurpose         string                 `json:"loanPurpose"`
	EmploymentStatus    string                 `json:"employmentStatus"`
	AnnualIncome        *float64               `json:"annualIncome"`
}

// RegisterRequest is the request body for account registration
type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsPaid   bool   `json:"is_paid"`
}

// CheckoutRequest is the request body for creating a checkout session
type CheckoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}
