package banksdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Analytics operations. An empty period means month, as on the backend.

func periodQuery(p Period) (url.Values, error) {
	if p == "" {
		return nil, nil
	}
	if !p.Valid() {
		return nil, &ValidationError{Fields: map[string]string{
			"period": fmt.Sprintf("%q is not one of week, month, year", p),
		}}
	}
	return url.Values{"period": {string(p)}}, nil
}

// Stats returns spending totals, top merchants and per-card usage.
func (s *Session) Stats(ctx context.Context, period Period) (*Stats, error) {
	q, err := periodQuery(period)
	if err != nil {
		return nil, err
	}
	req := NewRequest(http.MethodGet, "/analytics/stats/")
	req.Query = q

	var stats Stats
	if err := s.do(ctx, req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Session) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := s.do(ctx, NewRequest(http.MethodGet, "/analytics/dashboard/"), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Trends returns spending bucketed per day, or per month for a year.
func (s *Session) Trends(ctx context.Context, period Period) (*Trends, error) {
	q, err := periodQuery(period)
	if err != nil {
		return nil, err
	}
	req := NewRequest(http.MethodGet, "/analytics/trends/")
	req.Query = q

	var t Trends
	if err := s.do(ctx, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
