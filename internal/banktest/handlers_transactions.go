package banktest

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const statusCompleted = "COMPLETED"

var transactionTypes = []string{"PAYMENT", "REFUND", "WITHDRAWAL"}

type transactionJSON struct {
	ID              string    `json:"id"`
	Card            int       `json:"card"`
	Amount          string    `json:"amount"`
	Merchant        string    `json:"merchant"`
	Location        string    `json:"location"`
	TransactionType string    `json:"transaction_type"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	ReferenceID     string    `json:"reference_id"`
}

func toTransactionJSON(tx *transaction) transactionJSON {
	return transactionJSON{
		ID:              strconv.Itoa(tx.ID),
		Card:            tx.CardID,
		Amount:          tx.Amount.StringFixed(2),
		Merchant:        tx.Merchant,
		Location:        tx.Location,
		TransactionType: tx.Type,
		Status:          tx.Status,
		Timestamp:       tx.Timestamp,
		ReferenceID:     tx.ReferenceID,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.Lock()
	txs := s.data.transactionsOf(httpx.UserIDFromContext(r.Context()))
	s.mu.Unlock()

	txs = slices.DeleteFunc(txs, func(tx *transaction) bool {
		if v := q.Get("card"); v != "" && v != strconv.Itoa(tx.CardID) {
			return true
		}
		if v := q.Get("transaction_type"); v != "" && v != tx.Type {
			return true
		}
		if v := q.Get("status"); v != "" && v != tx.Status {
			return true
		}
		return false
	})

	// Unknown ordering fields are ignored, as with DRF's OrderingFilter.
	ordering := q.Get("ordering")
	desc := strings.HasPrefix(ordering, "-")
	var cmp func(a, b *transaction) int
	switch strings.TrimPrefix(ordering, "-") {
	case "timestamp":
		cmp = func(a, b *transaction) int { return a.Timestamp.Compare(b.Timestamp) }
	case "amount":
		cmp = func(a, b *transaction) int { return a.Amount.Cmp(b.Amount) }
	}
	if cmp != nil {
		slices.SortStableFunc(txs, func(a, b *transaction) int {
			if desc {
				return cmp(b, a)
			}
			return cmp(a, b)
		})
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionJSON(tx))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w, "Transaction")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.data.transactionsOf(httpx.UserIDFromContext(r.Context())) {
		if tx.ID == id {
			httpx.WriteJSON(w, http.StatusOK, toTransactionJSON(tx))
			return
		}
	}
	writeNotFound(w, "Transaction")
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetCardID string          `json:"target_card_id"`
		Amount       decimal.Decimal `json:"amount"`
		Merchant     string          `json:"merchant"`
		Location     string          `json:"location"`
		Type         string          `json:"transaction_type"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := fieldErrors{}
	if strings.TrimSpace(body.Merchant) == "" {
		errs.add("merchant", "This field may not be blank.")
	}
	if !slices.Contains(transactionTypes, body.Type) {
		errs.add("transaction_type", `"`+body.Type+`" is not a valid choice.`)
	}
	if !body.Amount.IsPositive() {
		errs.add("amount", "Ensure this value is greater than 0.")
	} else {
		validateLimit(errs, "amount", body.Amount)
	}

	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	var target *card
	if id, err := strconv.Atoi(body.TargetCardID); err == nil {
		target = s.data.card(id)
	}
	switch {
	case target == nil:
		errs.add("target_card_id", `Invalid pk "`+body.TargetCardID+`" - object does not exist.`)
	case target.UserID != userID:
		errs.add("target_card_id", "Card does not belong to user.")
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}

	tx := &transaction{
		ID:          s.data.id(),
		CardID:      target.ID,
		Amount:      body.Amount,
		Merchant:    body.Merchant,
		Location:    body.Location,
		Type:        body.Type,
		Status:      statusCompleted,
		Timestamp:   s.now(),
		ReferenceID: uuid.NewString(),
	}
	s.data.transactions = append(s.data.transactions, tx)
	s.data.audit(userID, ActionTransaction, httpx.IPKeyExtractor(r), 0, map[string]any{
		"card_id":      target.ID,
		"amount":       tx.Amount.StringFixed(2),
		"reference_id": tx.ReferenceID,
	}, tx.Timestamp)

	httpx.WriteJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

// AddTransaction records a completed transaction on card id at ts without
// going through the API. Analytics tests use it to place history in the
// past.
func (s *Server) AddTransaction(cardID string, amount decimal.Decimal, merchant, kind string, ts time.Time) error {
	id, err := strconv.Atoi(cardID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.card(id) == nil {
		return errUnknownCard
	}
	s.data.transactions = append(s.data.transactions, &transaction{
		ID:          s.data.id(),
		CardID:      id,
		Amount:      amount,
		Merchant:    merchant,
		Type:        kind,
		Status:      statusCompleted,
		Timestamp:   ts.UTC(),
		ReferenceID: uuid.NewString(),
	})
	return nil
}
