package banktest

import (
	"net/http"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
)

type auditLogJSON struct {
	ID        int            `json:"id"`
	User      string         `json:"user"`
	Action    string         `json:"action"`
	IPAddress string         `json:"ip_address"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
	RiskScore int            `json:"risk_score"`
}

type deviceJSON struct {
	ID        int       `json:"id"`
	User      string    `json:"user"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	OS        string    `json:"os"`
	Browser   string    `json:"browser"`
	LastLogin time.Time `json:"last_login"`
	IsTrusted bool      `json:"is_trusted"`
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []auditLogJSON{}
	for _, l := range s.data.logsOf(httpx.UserIDFromContext(r.Context())) {
		out = append(out, auditLogJSON{
			ID:        l.ID,
			User:      l.UserID,
			Action:    l.Action,
			IPAddress: l.IPAddress,
			Timestamp: l.Timestamp,
			Details:   l.Details,
			RiskScore: l.RiskScore,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []deviceJSON{}
	for _, d := range s.data.devicesOf(httpx.UserIDFromContext(r.Context())) {
		out = append(out, deviceJSON{
			ID:        d.ID,
			User:      d.UserID,
			IPAddress: d.IPAddress,
			UserAgent: d.UserAgent,
			OS:        d.OS,
			Browser:   d.Browser,
			LastLogin: d.LastLogin,
			IsTrusted: d.IsTrusted,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
