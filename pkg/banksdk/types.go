package banksdk

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Authentication types
// ============================================================================

// TokenPair is the credential pair returned by login and renewal. Renewal
// may omit Refresh when the backend does not rotate it.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// tokenResponse is a login response. Face login also embeds the user.
type tokenResponse struct {
	TokenPair
	User *User `json:"user,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type faceLoginRequest struct {
	Image EncodedImage `json:"image"`
}

type mfaRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

type logoutRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

// User is the profile of the signed-in account.
type User struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	IsVerified       bool   `json:"is_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`

	// ProfilePicture is the avatar URL, empty when none is set.
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// RegisterRequest holds the sign-up form. PasswordConfirmation travels as
// "password2".
type RegisterRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password2"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Username         *string `json:"username,omitempty"`
	Email            *string `json:"email,omitempty"`
	TwoFactorEnabled *bool   `json:"two_factor_enabled,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ============================================================================
// Cards
// ============================================================================

type Card struct {
	ID             string          `json:"id"`
	CardHolderName string          `json:"card_holder_name"`
	ExpiryDate     string          `json:"expiry_date"` // MM/YY
	MaskedNumber   string          `json:"masked_number"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	IsActive       bool            `json:"is_active"`
	IsBlocked      bool            `json:"is_blocked"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewCard is the creation payload. Number and CVV are write-only and never
// returned by the backend.
type NewCard struct {
	CardHolderName string           `json:"card_holder_name"`
	CardNumber     string           `json:"card_number"`
	CVV            string           `json:"cvv"`
	ExpiryDate     string           `json:"expiry_date"`
	DailyLimit     *decimal.Decimal `json:"daily_limit,omitempty"`
}

// ============================================================================
// Transactions
// ============================================================================

type TransactionType string

const (
	TransactionPayment    TransactionType = "PAYMENT"
	TransactionRefund     TransactionType = "REFUND"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPayment, TransactionRefund, TransactionWithdrawal:
		return true
	}
	return false
}

type Transaction struct {
	ID              string          `json:"id"`
	Card            json.Number     `json:"card"`
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	Location        string          `json:"location,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
	Status          string          `json:"status"` // PENDING, COMPLETED, FAILED
	Timestamp       time.Time       `json:"timestamp"`
	ReferenceID     string          `json:"reference_id"`
}

type NewTransaction struct {
	CardID          string          `json:"target_card_id"`
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	Location        string          `json:"location,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
}

// TransactionFilter narrows ListTransactions. Ordering accepts "timestamp",
// "amount" or either prefixed with "-".
type TransactionFilter struct {
	Card     string
	Type     TransactionType
	Status   string
	Ordering string
}

// ============================================================================
// Analytics
// ============================================================================

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func (p Period) Valid() bool {
	return p == PeriodWeek || p == PeriodMonth || p == PeriodYear
}

type Stats struct {
	Period           Period             `json:"period"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	Summary          StatsSummary       `json:"summary"`
	TopMerchants     []MerchantTotal    `json:"top_merchants"`
	TransactionTypes []TypeBreakdown    `json:"transaction_types"`
	CardStats        []CardSpendingStat `json:"card_stats"`
}

type StatsSummary struct {
	TotalSpent         decimal.Decimal `json:"total_spent"`
	TransactionCount   int             `json:"transaction_count"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
	ActiveCards        int             `json:"active_cards"`
	TotalCards         int             `json:"total_cards"`
}

type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

type TypeBreakdown struct {
	TransactionType TransactionType `json:"transaction_type"`
	Count           int             `json:"count"`
	Total           decimal.Decimal `json:"total"`
}

type CardSpendingStat struct {
	CardID           json.Number     `json:"card_id"`
	LastFour         string          `json:"last_four"`
	CardHolderName   string          `json:"card_holder_name"`
	IsBlocked        bool            `json:"is_blocked"`
	TransactionCount int             `json:"transaction_count"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
}

type Dashboard struct {
	Cards struct {
		Total   int `json:"total"`
		Active  int `json:"active"`
		Blocked int `json:"blocked"`
	} `json:"cards"`
	MonthlySpending struct {
		Total            decimal.Decimal `json:"total"`
		TransactionCount int             `json:"transaction_count"`
	} `json:"monthly_spending"`
	RecentActivity int `json:"recent_activity"`
}

type Trends struct {
	Period Period       `json:"period"`
	Trends []TrendPoint `json:"trends"`
}

type TrendPoint struct {
	Date  string          `json:"date"` // YYYY-MM-DD, or YYYY-MM for a year
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// ============================================================================
// Monitoring
// ============================================================================

type AuditLog struct {
	ID        json.Number    `json:"id"`
	Action    string         `json:"action"`
	IPAddress string         `json:"ip_address"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	RiskScore int            `json:"risk_score"`
}

type Device struct {
	ID        json.Number `json:"id"`
	IPAddress string      `json:"ip_address"`
	UserAgent string      `json:"user_agent"`
	OS        string      `json:"os"`
	Browser   string      `json:"browser"`
	LastLogin time.Time   `json:"last_login"`
	IsTrusted bool        `json:"is_trusted"`
}
