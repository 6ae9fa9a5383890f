package banktest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errUnknownUser = errors.New("banktest: unknown user")
	errUnknownCard = errors.New("banktest: unknown card")
)

// Audit actions recorded by the backend.
const (
	ActionLogin       = "LOGIN"
	ActionLogout      = "LOGOUT"
	ActionAddCard     = "ADD_CARD"
	ActionDeleteCard  = "DELETE_CARD"
	ActionBlockCard   = "BLOCK_CARD"
	ActionTransaction = "TRANSACTION"
	ActionLimitChange = "LIMIT_CHANGE"
	ActionFailedLogin = "FAILED_LOGIN"
)

var defaultDailyLimit = decimal.New(100000, -2)

type user struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	IsVerified     bool
	TOTPSecret     string
	ProfilePicture string
}

func (u *user) twoFactor() bool { return u.TOTPSecret != "" }

type card struct {
	ID              int
	UserID          string
	HolderName      string
	EncryptedNumber []byte
	EncryptedCVV    []byte
	LastFour        string
	ExpiryDate      string
	DailyLimit      decimal.Decimal
	IsActive        bool
	IsBlocked       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type transaction struct {
	ID          int
	CardID      int
	Amount      decimal.Decimal
	Merchant    string
	Location    string
	Type        string
	Status      string
	Timestamp   time.Time
	ReferenceID string
}

type auditLog struct {
	ID        int
	UserID    string
	Action    string
	IPAddress string
	Timestamp time.Time
	Details   map[string]any
	RiskScore int
}

type device struct {
	ID        int
	UserID    string
	IPAddress string
	UserAgent string
	OS        string
	Browser   string
	LastLogin time.Time
	IsTrusted bool
}

// state is the backend's database. Every access happens under Server.mu.
type state struct {
	nextID       int
	users        []*user
	cards        []*card
	transactions []*transaction
	logs         []*auditLog
	devices      []*device
}

func newState() *state { return &state{} }

func (st *state) id() int {
	st.nextID++
	return st.nextID
}

// objectID mimics the 24 hex digit ids the document store hands out.
func (st *state) objectID() string {
	return fmt.Sprintf("%024x", st.id())
}

func (st *state) userByEmail(email string) *user {
	for _, u := range st.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (st *state) userByID(id string) *user {
	for _, u := range st.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (st *state) userByUsername(name string) *user {
	for _, u := range st.users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func (st *state) cardsOf(userID string) []*card {
	var out []*card
	for _, c := range st.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (st *state) card(id int) *card {
	for _, c := range st.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (st *state) deleteCard(id int) {
	cards := st.cards[:0]
	for _, c := range st.cards {
		if c.ID != id {
			cards = append(cards, c)
		}
	}
	st.cards = cards

	txs := st.transactions[:0]
	for _, tx := range st.transactions {
		if tx.CardID != id {
			txs = append(txs, tx)
		}
	}
	st.transactions = txs
}

func (st *state) transactionsOf(userID string) []*transaction {
	owned := make(map[int]bool)
	for _, c := range st.cardsOf(userID) {
		owned[c.ID] = true
	}

	var out []*transaction
	for _, tx := range st.transactions {
		if owned[tx.CardID] {
			out = append(out, tx)
		}
	}
	return out
}

func (st *state) logsOf(userID string) []*auditLog {
	var out []*auditLog
	for _, l := range st.logs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

func (st *state) devicesOf(userID string) []*device {
	var out []*device
	for _, d := range st.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out
}

func (st *state) audit(userID, action, ip string, risk int, details map[string]any, now time.Time) {
	if details == nil {
		details = map[string]any{}
	}
	st.logs = append(st.logs, &auditLog{
		ID:        st.id(),
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		Timestamp: now,
		Details:   details,
		RiskScore: risk,
	})
}

// trackDevice records or refreshes the device a sign-in came from.
func (st *state) trackDevice(userID, ip, userAgent string, now time.Time) {
	for _, d := range st.devices {
		if d.UserID == userID && d.IPAddress == ip && d.UserAgent == userAgent {
			d.LastLogin = now
			return
		}
	}

	osName, browser := parseUserAgent(userAgent)
	st.devices = append(st.devices, &device{
		ID:        st.id(),
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		OS:        osName,
		Browser:   browser,
		LastLogin: now,
	})
}

// parseUserAgent is a coarse family detector, enough to tell devices apart.
func parseUserAgent(ua string) (osName, browser string) {
	osName, browser = "Other", "Other"

	switch {
	case strings.Contains(ua, "Android"):
		osName = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		osName = "iOS"
	case strings.Contains(ua, "Windows"):
		osName = "Windows"
	case strings.Contains(ua, "Mac OS X"):
		osName = "Mac OS X"
	case strings.Contains(ua, "Linux"):
		osName = "Linux"
	}

	switch {
	case strings.Contains(ua, "Edg/"):
		browser = "Edge"
	case strings.Contains(ua, "Chrome/"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari/"):
		browser = "Safari"
	case strings.HasPrefix(ua, "Go-http-client"):
		browser = "Go-http-client"
	case strings.HasPrefix(ua, "bankctl"):
		browser = "bankctl"
	}
	return osName, browser
}
