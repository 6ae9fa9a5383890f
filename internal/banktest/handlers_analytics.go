package banktest

import (
	"cmp"
	"net/http"
	"slices"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// periodWindow maps a period to its look-back window and trend bucket
// layout. Anything unrecognised falls back to month.
func periodWindow(period string) (time.Duration, string) {
	switch period {
	case "week":
		return 7 * day, time.DateOnly
	case "year":
		return 365 * day, "2006-01"
	default:
		return 30 * day, time.DateOnly
	}
}

func periodParam(r *http.Request) string {
	if p := r.URL.Query().Get("period"); p != "" {
		return p
	}
	return "month"
}

func sum(txs []*transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

func since(txs []*transaction, start time.Time) []*transaction {
	var out []*transaction
	for _, tx := range txs {
		if !tx.Timestamp.Before(start) {
			out = append(out, tx)
		}
	}
	return out
}

type group struct {
	key   string
	total decimal.Decimal
	count int
}

// groupBy aggregates txs by key, keeping first-seen order.
func groupBy(txs []*transaction, key func(*transaction) string) []*group {
	var out []*group
	index := make(map[string]*group)
	for _, tx := range txs {
		k := key(tx)
		g, ok := index[k]
		if !ok {
			g = &group{key: k, total: decimal.Zero}
			index[k] = g
			out = append(out, g)
		}
		g.total = g.total.Add(tx.Amount)
		g.count++
	}
	return out
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	period := periodParam(r)
	window, _ := periodWindow(period)
	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	start := now.Add(-window)
	cards := s.data.cardsOf(userID)
	txs := since(s.data.transactionsOf(userID), start)

	total := sum(txs)
	avg := decimal.Zero
	if len(txs) > 0 {
		avg = total.Div(decimal.NewFromInt(int64(len(txs))))
	}

	merchants := groupBy(txs, func(tx *transaction) string { return tx.Merchant })
	slices.SortStableFunc(merchants, func(a, b *group) int { return b.total.Cmp(a.total) })
	topMerchants := []map[string]any{}
	for _, g := range merchants[:min(5, len(merchants))] {
		topMerchants = append(topMerchants, map[string]any{
			"merchant": g.key,
			"total":    g.total.StringFixed(2),
			"count":    g.count,
		})
	}

	types := []map[string]any{}
	for _, g := range groupBy(txs, func(tx *transaction) string { return tx.Type }) {
		types = append(types, map[string]any{
			"transaction_type": g.key,
			"count":            g.count,
			"total":            g.total.StringFixed(2),
		})
	}

	active := 0
	cardStats := []map[string]any{}
	for _, c := range cards {
		if !c.IsBlocked {
			active++
		}
		own := slices.DeleteFunc(slices.Clone(txs), func(tx *transaction) bool { return tx.CardID != c.ID })
		cardStats = append(cardStats, map[string]any{
			"card_id":           c.ID,
			"last_four":         c.LastFour,
			"card_holder_name":  c.HolderName,
			"is_blocked":        c.IsBlocked,
			"transaction_count": len(own),
			"total_spent":       sum(own).InexactFloat64(),
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"period":     period,
		"start_date": start.Format(time.RFC3339Nano),
		"end_date":   now.Format(time.RFC3339Nano),
		"summary": map[string]any{
			"total_spent":         total.InexactFloat64(),
			"transaction_count":   len(txs),
			"average_transaction": avg.InexactFloat64(),
			"active_cards":        active,
			"total_cards":         len(cards),
		},
		"top_merchants":     topMerchants,
		"transaction_types": types,
		"card_stats":        cardStats,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	cards := s.data.cardsOf(userID)
	blocked := 0
	for _, c := range cards {
		if c.IsBlocked {
			blocked++
		}
	}

	all := s.data.transactionsOf(userID)
	monthly := since(all, monthStart)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cards": map[string]int{
			"total":   len(cards),
			"active":  len(cards) - blocked,
			"blocked": blocked,
		},
		"monthly_spending": map[string]any{
			"total":             sum(monthly).InexactFloat64(),
			"transaction_count": len(monthly),
		},
		"recent_activity": min(5, len(all)),
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	period := periodParam(r)
	window, layout := periodWindow(period)
	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	txs := since(s.data.transactionsOf(userID), s.now().Add(-window))
	slices.SortStableFunc(txs, func(a, b *transaction) int { return cmp.Compare(a.Timestamp.UnixNano(), b.Timestamp.UnixNano()) })

	trends := []map[string]any{}
	for _, g := range groupBy(txs, func(tx *transaction) string { return tx.Timestamp.Format(layout) }) {
		trends = append(trends, map[string]any{
			"date":  g.key,
			"total": g.total.InexactFloat64(),
			"count": g.count,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"trends": trends,
	})
}
