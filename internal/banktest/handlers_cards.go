package banktest

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/shopspring/decimal"
)

var (
	cardNumberRe = regexp.MustCompile(`^[0-9]{13,19}$`)
	cvvRe        = regexp.MustCompile(`^[0-9]{3,4}$`)
	expiryRe     = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)

	maxDailyLimit = decimal.New(1, 8) // max_digits=10, decimal_places=2
)

type cardJSON struct {
	ID             string    `json:"id"`
	CardHolderName string    `json:"card_holder_name"`
	ExpiryDate     string    `json:"expiry_date"`
	MaskedNumber   string    `json:"masked_number"`
	DailyLimit     string    `json:"daily_limit"`
	IsActive       bool      `json:"is_active"`
	IsBlocked      bool      `json:"is_blocked"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toCardJSON(c *card) cardJSON {
	return cardJSON{
		ID:             strconv.Itoa(c.ID),
		CardHolderName: c.HolderName,
		ExpiryDate:     c.ExpiryDate,
		MaskedNumber:   c.LastFour,
		DailyLimit:     c.DailyLimit.StringFixed(2),
		IsActive:       c.IsActive,
		IsBlocked:      c.IsBlocked,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func validateLimit(errs fieldErrors, field string, v decimal.Decimal) {
	switch {
	case v.IsNegative():
		errs.add(field, "Ensure this value is greater than or equal to 0.")
	case v.GreaterThanOrEqual(maxDailyLimit):
		errs.add(field, "Ensure that there are no more than 10 digits in total.")
	case !v.Equal(v.Round(2)):
		errs.add(field, "Ensure that there are no more than 2 decimal places.")
	}
}

// ownedCardLocked resolves {id} to a card of the authenticated user.
func (s *Server) ownedCardLocked(r *http.Request) *card {
	id, ok := pathID(r)
	if !ok {
		return nil
	}
	c := s.data.card(id)
	if c == nil || c.UserID != httpx.UserIDFromContext(r.Context()) {
		return nil
	}
	return c
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []cardJSON{}
	for _, c := range s.data.cardsOf(httpx.UserIDFromContext(r.Context())) {
		out = append(out, toCardJSON(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CardHolderName string           `json:"card_holder_name"`
		CardNumber     string           `json:"card_number"`
		CVV            string           `json:"cvv"`
		ExpiryDate     string           `json:"expiry_date"`
		DailyLimit     *decimal.Decimal `json:"daily_limit"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	number := strings.ReplaceAll(body.CardNumber, " ", "")
	errs := fieldErrors{}
	if strings.TrimSpace(body.CardHolderName) == "" {
		errs.add("card_holder_name", "This field may not be blank.")
	}
	if !cardNumberRe.MatchString(number) {
		errs.add("card_number", "Enter a valid card number.")
	}
	if !cvvRe.MatchString(body.CVV) {
		errs.add("cvv", "Enter a valid CVV.")
	}
	if !expiryRe.MatchString(body.ExpiryDate) {
		errs.add("expiry_date", "Use the MM/YY format.")
	}
	limit := defaultDailyLimit
	if body.DailyLimit != nil {
		limit = *body.DailyLimit
		validateLimit(errs, "daily_limit", limit)
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}

	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.newCardLocked(userID, body.CardHolderName, number, body.CVV, body.ExpiryDate, limit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.data.audit(userID, ActionAddCard, httpx.IPKeyExtractor(r), 0, map[string]any{"card_id": c.ID}, c.CreatedAt)

	httpx.WriteJSON(w, http.StatusCreated, toCardJSON(c))
}

// newCardLocked seals number and cvv, bound to the new card's id, and
// stores the card.
func (s *Server) newCardLocked(userID, holder, number, cvv, expiry string, limit decimal.Decimal) (*card, error) {
	id := s.data.id()
	aad := []byte(strconv.Itoa(id))

	sealedNumber, err := s.sealer.Seal([]byte(number), aad)
	if err != nil {
		return nil, err
	}
	sealedCVV, err := s.sealer.Seal([]byte(cvv), aad)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &card{
		ID:              id,
		UserID:          userID,
		HolderName:      holder,
		EncryptedNumber: sealedNumber,
		EncryptedCVV:    sealedCVV,
		LastFour:        number[len(number)-4:],
		ExpiryDate:      expiry,
		DailyLimit:      limit,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.data.cards = append(s.data.cards, c)
	return c, nil
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownedCardLocked(r)
	if c == nil {
		writeNotFound(w, "Card")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCardJSON(c))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CardHolderName *string          `json:"card_holder_name"`
		ExpiryDate     *string          `json:"expiry_date"`
		DailyLimit     *decimal.Decimal `json:"daily_limit"`
		CardNumber     *string          `json:"card_number"`
		CVV            *string          `json:"cvv"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.CardNumber != nil || body.CVV != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, []string{"Cannot update card number or CVV directly."})
		return
	}

	errs := fieldErrors{}
	if body.DailyLimit != nil {
		validateLimit(errs, "daily_limit", *body.DailyLimit)
	}
	if body.ExpiryDate != nil && !expiryRe.MatchString(*body.ExpiryDate) {
		errs.add("expiry_date", "Use the MM/YY format.")
	}
	if len(errs) > 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownedCardLocked(r)
	if c == nil {
		writeNotFound(w, "Card")
		return
	}

	if body.CardHolderName != nil {
		c.HolderName = *body.CardHolderName
	}
	if body.ExpiryDate != nil {
		c.ExpiryDate = *body.ExpiryDate
	}
	if body.DailyLimit != nil && !body.DailyLimit.Equal(c.DailyLimit) {
		s.data.audit(c.UserID, ActionLimitChange, httpx.IPKeyExtractor(r), 0, map[string]any{
			"card_id": c.ID,
			"from":    c.DailyLimit.StringFixed(2),
			"to":      body.DailyLimit.StringFixed(2),
		}, s.now())
		c.DailyLimit = *body.DailyLimit
	}
	c.UpdatedAt = s.now()

	httpx.WriteJSON(w, http.StatusOK, toCardJSON(c))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownedCardLocked(r)
	if c == nil {
		writeNotFound(w, "Card")
		return
	}

	s.data.deleteCard(c.ID)
	s.data.audit(c.UserID, ActionDeleteCard, httpx.IPKeyExtractor(r), 0, map[string]any{"card_id": c.ID}, s.now())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlockCard(blocked bool) http.HandlerFunc {
	status := "card unblocked"
	if blocked {
		status = "card blocked"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		c := s.ownedCardLocked(r)
		if c == nil {
			writeNotFound(w, "Card")
			return
		}

		c.IsBlocked = blocked
		c.UpdatedAt = s.now()
		if blocked {
			s.data.audit(c.UserID, ActionBlockCard, httpx.IPKeyExtractor(r), 0, map[string]any{"card_id": c.ID}, s.now())
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

// CardNumber opens the sealed number of card id. It exists so tests can
// check the number is held encrypted and still recoverable.
func (s *Server) CardNumber(id string) (string, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.data.card(n)
	if c == nil {
		return "", errUnknownCard
	}
	plain, err := s.sealer.Open(c.EncryptedNumber, []byte(strconv.Itoa(c.ID)))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
