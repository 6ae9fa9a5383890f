package banksdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Card operations

func cardPath(id string) string {
	return "/cards/" + url.PathEscape(id) + "/"
}

// ListCards returns every card of the signed-in user.
func (s *Session) ListCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := s.do(ctx, NewRequest(http.MethodGet, "/cards/"), &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *Session) GetCard(ctx context.Context, id string) (*Card, error) {
	var card Card
	if err := s.do(ctx, NewRequest(http.MethodGet, cardPath(id)), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// CreateCard registers a card. The number and CVV are sent once and only
// the last four digits come back.
func (s *Session) CreateCard(ctx context.Context, in NewCard) (*Card, error) {
	if err := newValidationError(in.Validate()); err != nil {
		return nil, err
	}

	req, err := NewJSONRequest(http.MethodPost, "/cards/", in)
	if err != nil {
		return nil, err
	}

	var card Card
	if err := s.do(ctx, req, &card); err != nil {
		return nil, fieldErrors(err)
	}
	return &card, nil
}

// UpdateCardLimit changes the daily spending limit.
func (s *Session) UpdateCardLimit(ctx context.Context, id string, limit decimal.Decimal) (*Card, error) {
	errs := make(map[string]string)
	validateAmount(errs, "daily_limit", limit)
	if err := newValidationError(errs); err != nil {
		return nil, err
	}

	req, err := NewJSONRequest(http.MethodPatch, cardPath(id), map[string]decimal.Decimal{"daily_limit": limit})
	if err != nil {
		return nil, err
	}

	var card Card
	if err := s.do(ctx, req, &card); err != nil {
		return nil, fieldErrors(err)
	}
	return &card, nil
}

func (s *Session) DeleteCard(ctx context.Context, id string) error {
	return s.do(ctx, NewRequest(http.MethodDelete, cardPath(id)), nil)
}

// BlockCard stops a card from being used until UnblockCard.
func (s *Session) BlockCard(ctx context.Context, id string) error {
	return s.do(ctx, NewRequest(http.MethodPost, cardPath(id)+"block/"), nil)
}

func (s *Session) UnblockCard(ctx context.Context, id string) error {
	return s.do(ctx, NewRequest(http.MethodPost, cardPath(id)+"unblock/"), nil)
}
