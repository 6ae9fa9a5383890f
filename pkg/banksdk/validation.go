package banksdk

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	reasonRequired = "This field is required."
	maxPasswordLen = 128

	// MinNewPasswordLen matches the backend's change-password rule.
	MinNewPasswordLen = 8
)

var (
	reUsername = regexp.MustCompile(`^[\w.@+-]+$`)
	reDigits   = regexp.MustCompile(`^[0-9]+$`)
	reExpiry   = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	reOTP      = regexp.MustCompile(`^[0-9]{6}$`)
)

// Validate checks the form locally. It returns field errors keyed by wire
// name, or nil when the request may be sent.
func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)

	r.validateUsername(errs)
	validateEmail(errs, "email", r.Email)
	r.validatePassword(errs)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (r RegisterRequest) validateUsername(errs map[string]string) {
	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		errs["username"] = reasonRequired
	case len(username) > 150:
		errs["username"] = "Ensure this field has no more than 150 characters."
	case !reUsername.MatchString(username):
		errs["username"] = "Enter a valid username. Letters, digits and @/./+/-/_ only."
	}
}

func (r RegisterRequest) validatePassword(errs map[string]string) {
	switch {
	case r.Password == "":
		errs["password"] = reasonRequired
	case len(r.Password) > maxPasswordLen:
		errs["password"] = "Ensure this field has no more than 128 characters."
	}

	switch {
	case r.PasswordConfirmation == "":
		errs["password2"] = reasonRequired
	case r.Password != r.PasswordConfirmation:
		errs["password2"] = "Password fields didn't match."
	}
}

func validateEmail(errs map[string]string, field, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		errs[field] = reasonRequired
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		errs[field] = "Enter a valid email address."
	}
}

func validateLogin(email, password string) map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(email) == "" {
		errs["email"] = reasonRequired
	}
	if password == "" {
		errs["password"] = reasonRequired
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks a card before creation. The number and CVV are checked
// for shape only; the backend owns everything else.
func (c NewCard) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(c.CardHolderName) == "" {
		errs["card_holder_name"] = reasonRequired
	} else if len(c.CardHolderName) > 100 {
		errs["card_holder_name"] = "Ensure this field has no more than 100 characters."
	}

	number := strings.ReplaceAll(c.CardNumber, " ", "")
	switch {
	case number == "":
		errs["card_number"] = reasonRequired
	case !reDigits.MatchString(number) || len(number) < 13 || len(number) > 19:
		errs["card_number"] = "Card number must be 13 to 19 digits."
	}

	switch {
	case c.CVV == "":
		errs["cvv"] = reasonRequired
	case !reDigits.MatchString(c.CVV) || len(c.CVV) < 3 || len(c.CVV) > 4:
		errs["cvv"] = "CVV must be 3 or 4 digits."
	}

	switch {
	case c.ExpiryDate == "":
		errs["expiry_date"] = reasonRequired
	case !reExpiry.MatchString(c.ExpiryDate):
		errs["expiry_date"] = "Expiry date must be MM/YY."
	}

	if c.DailyLimit != nil {
		validateAmount(errs, "daily_limit", *c.DailyLimit)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (t NewTransaction) Validate() map[string]string {
	errs := make(map[string]string)

	if t.CardID == "" {
		errs["target_card_id"] = reasonRequired
	}
	if strings.TrimSpace(t.Merchant) == "" {
		errs["merchant"] = reasonRequired
	}
	if !t.TransactionType.Valid() {
		errs["transaction_type"] = `"` + string(t.TransactionType) + `" is not a valid choice.`
	}
	validateAmount(errs, "amount", t.Amount)
	if t.Amount.IsZero() && errs["amount"] == "" {
		errs["amount"] = "Amount must be greater than zero."
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// validateAmount enforces the backend's DecimalField(max_digits=10,
// decimal_places=2).
func validateAmount(errs map[string]string, field string, v decimal.Decimal) {
	switch {
	case v.IsNegative():
		errs[field] = "Ensure this value is greater than or equal to 0."
	case !v.Equal(v.Round(2)):
		errs[field] = "Ensure that there are no more than 2 decimal places."
	case v.Truncate(0).GreaterThanOrEqual(decimal.New(1, 8)):
		errs[field] = "Ensure that there are no more than 10 digits in total."
	}
}

func validateNewPassword(req ChangePasswordRequest) map[string]string {
	errs := make(map[string]string)
	if req.OldPassword == "" {
		errs["old_password"] = reasonRequired
	}
	switch {
	case req.NewPassword == "":
		errs["new_password"] = reasonRequired
	case len(req.NewPassword) < MinNewPasswordLen:
		errs["new_password"] = "Password must be at least 8 characters long"
	case len(req.NewPassword) > maxPasswordLen:
		errs["new_password"] = "Ensure this field has no more than 128 characters."
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateOTP(code string) map[string]string {
	if !reOTP.MatchString(strings.TrimSpace(code)) {
		return map[string]string{"code": "Enter the 6 digit code from your authenticator."}
	}
	return nil
}
