package banksdk

import (
	"context"
	"net/http"
	"net/url"
)

// Transaction operations

// ListTransactions returns the user's transactions, newest first unless
// filter.Ordering says otherwise.
func (s *Session) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	req := NewRequest(http.MethodGet, "/transactions/")
	req.Query = filter.query()

	var txs []Transaction
	if err := s.do(ctx, req, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Session) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	if err := s.do(ctx, NewRequest(http.MethodGet, "/transactions/"+url.PathEscape(id)+"/"), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// CreateTransaction records a payment, refund or withdrawal against one of
// the user's cards. The backend assigns the reference id and status.
func (s *Session) CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error) {
	if err := newValidationError(in.Validate()); err != nil {
		return nil, err
	}

	req, err := NewJSONRequest(http.MethodPost, "/transactions/", in)
	if err != nil {
		return nil, err
	}

	var tx Transaction
	if err := s.do(ctx, req, &tx); err != nil {
		return nil, fieldErrors(err)
	}
	return &tx, nil
}

func (f TransactionFilter) query() url.Values {
	q := url.Values{}
	if f.Card != "" {
		q.Set("card", f.Card)
	}
	if f.Type != "" {
		q.Set("transaction_type", string(f.Type))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	return q
}
