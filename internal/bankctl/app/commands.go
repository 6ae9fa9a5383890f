package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/common-nighthawk/go-figure"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
)

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error
}

// UsageError is a malformed command line.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

var commands = []command{
	{name: "login", args: "[--email E] [--password P] [--code C | --totp-secret S]", summary: "sign in with email and password", run: runLogin},
	{name: "face-login", args: "[--image FILE]", summary: "sign in with a camera still or image file", run: runFaceLogin},
	{name: "mfa", args: "--token T (--code C | --totp-secret S)", summary: "finish a sign-in that needs a second factor", run: runMFA},
	{name: "register", args: "--username U --email E [--password P]", summary: "create an account", run: runRegister},
	{name: "whoami", summary: "show the signed-in user", run: runWhoami},
	{name: "logout", summary: "sign out and forget stored credentials", run: runLogout},
	{name: "profile", args: "[--username U] [--email E]", summary: "update the profile", run: runProfile},
	{name: "passwd", args: "[--old P] [--new P]", summary: "change the password", run: runPasswd},
	{name: "avatar", args: "FILE", summary: "upload a profile picture", run: runAvatar},
	{name: "cards", summary: "list cards", run: runCards},
	{name: "card-add", args: "--holder H --number N --cvv C --expiry MM/YY [--limit L]", summary: "add a card", run: runCardAdd},
	{name: "card-limit", args: "ID AMOUNT", summary: "change a card's daily limit", run: runCardLimit},
	{name: "card-block", args: "ID", summary: "block a card", run: runCardBlock(true)},
	{name: "card-unblock", args: "ID", summary: "unblock a card", run: runCardBlock(false)},
	{name: "card-delete", args: "ID", summary: "delete a card", run: runCardDelete},
	{name: "transactions", args: "[--card ID] [--type T] [--status S] [--order F]", summary: "list transactions", run: runTransactions},
	{name: "pay", args: "--card ID --amount A --merchant M [--location L] [--type T]", summary: "record a transaction", run: runPay},
	{name: "stats", args: "[--period week|month|year]", summary: "spending statistics", run: runStats},
	{name: "dashboard", summary: "account overview", run: runDashboard},
	{name: "trends", args: "[--period week|month|year]", summary: "spending over time", run: runTrends},
	{name: "audit", summary: "list security audit events", run: runAudit},
	{name: "devices", summary: "list devices that signed in", run: runDevices},
	{name: "version", summary: "print the version", run: runVersion},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Run executes the sub-command named by args[0].
func (app *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		app.usage(app.stdout)
		return nil
	}

	cmd, ok := lookup(args[0])
	if !ok {
		app.usage(app.stderr)
		return usagef("unknown command %q", args[0])
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(app.stderr)
	fs.Usage = func() {
		fmt.Fprintf(app.stderr, "usage: bankctl %s %s\n", cmd.name, cmd.args)
		fs.PrintDefaults()
	}

	err := cmd.run(ctx, app, fs, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (app *Application) usage(w io.Writer) {
	fmt.Fprintln(w, "usage: bankctl [--config FILE] [--json] COMMAND [ARGS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
}

// parse parses fs and reports a usage error when the positional argument
// count is not want. A negative want accepts any count.
func parse(fs *flag.FlagSet, args []string, want int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &UsageError{Msg: err.Error()}
	}
	if want >= 0 && fs.NArg() != want {
		fs.Usage()
		return usagef("%s: expected %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return nil
}

// ============================================================================
// Authentication
// ============================================================================

// secondFactor resolves a one-time code from an explicit code, a TOTP
// secret, or a prompt, in that order.
func (app *Application) secondFactor(code, secret string) (string, error) {
	switch {
	case code != "":
		return code, nil
	case secret != "":
		return totp.GenerateCode(secret, time.Now())
	default:
		return app.prompt("Authentication code: ")
	}
}

func runLogin(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	code := fs.String("code", "", "one-time code for accounts with a second factor")
	secret := fs.String("totp-secret", "", "TOTP secret used to generate the one-time code")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = app.prompt("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = app.prompt("Password: "); err != nil {
			return err
		}
	}

	user, err := app.session.Login(ctx, *email, *password)

	var mfa *banksdk.MFARequiredError
	if errors.As(err, &mfa) {
		otp, ferr := app.secondFactor(*code, *secret)
		if ferr != nil {
			return ferr
		}
		user, err = app.session.CompleteMFA(ctx, mfa, otp)
	}
	if err != nil {
		return err
	}
	return app.signedIn(user)
}

func runMFA(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "MFA token returned by login")
	code := fs.String("code", "", "one-time code")
	secret := fs.String("totp-secret", "", "TOTP secret used to generate the one-time code")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *token == "" {
		return usagef("mfa: --token is required")
	}

	otp, err := app.secondFactor(*code, *secret)
	if err != nil {
		return err
	}
	user, err := app.session.CompleteMFA(ctx, &banksdk.MFARequiredError{MFAToken: *token}, otp)
	if err != nil {
		return err
	}
	return app.signedIn(user)
}

func runFaceLogin(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	image := fs.String("image", "", "still image file to use instead of the camera")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	c, err := app.capturer(*image)
	if err != nil {
		return err
	}
	user, err := app.session.LoginWithCamera(ctx, c)
	if err != nil {
		return err
	}
	return app.signedIn(user)
}

func (app *Application) signedIn(user *banksdk.User) error {
	return app.render(user, func(w io.Writer) {
		fmt.Fprintf(w, "Signed in as %s <%s>\n", user.Username, user.Email)
	})
}

func runRegister(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	var in banksdk.RegisterRequest
	fs.StringVar(&in.Username, "username", "", "username")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&in.Password, "password", "", "password (prompted when empty)")
	fs.StringVar(&in.PasswordConfirmation, "password2", "", "password confirmation (prompted when empty)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	var err error
	if in.Password == "" {
		if in.Password, err = app.prompt("Password: "); err != nil {
			return err
		}
	}
	if in.PasswordConfirmation == "" {
		if in.PasswordConfirmation, err = app.prompt("Confirm password: "); err != nil {
			return err
		}
	}

	user, err := app.session.Register(ctx, in)
	if err != nil {
		return err
	}
	return app.render(user, func(w io.Writer) {
		fmt.Fprintf(w, "Account %s created. Sign in with: bankctl login --email %s\n", user.Username, user.Email)
	})
}

func runWhoami(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	user, err := app.session.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return banksdk.ErrNotSignedIn
	}

	return app.render(user, func(w io.Writer) {
		tw := newTable(w)
		fmt.Fprintf(tw, "ID\t%s\n", user.ID)
		fmt.Fprintf(tw, "Username\t%s\n", user.Username)
		fmt.Fprintf(tw, "Email\t%s\n", user.Email)
		fmt.Fprintf(tw, "Verified\t%s\n", yesNo(user.IsVerified))
		fmt.Fprintf(tw, "Two-factor\t%s\n", yesNo(user.TwoFactorEnabled))
		if user.ProfilePicture != "" {
			fmt.Fprintf(tw, "Picture\t%s\n", user.ProfilePicture)
		}
		if claims, err := app.session.AccessClaims(ctx); err == nil && claims.ExpiresAt != nil {
			fmt.Fprintf(tw, "Access expires\t%s\n", claims.ExpiresAt.Local().Format(time.DateTime))
		}
		_ = tw.Flush()
	})
}

func runLogout(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if err := app.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(app.stderr, "Signed out.")
	return nil
}

// ============================================================================
// Profile
// ============================================================================

func runProfile(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	username := fs.String("username", "", "new username")
	email := fs.String("email", "", "new email address")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	var in banksdk.ProfileUpdate
	if *username != "" {
		in.Username = username
	}
	if *email != "" {
		in.Email = email
	}
	if in.Username == nil && in.Email == nil {
		return usagef("profile: nothing to update")
	}

	user, err := app.session.UpdateProfile(ctx, in)
	if err != nil {
		return err
	}
	return app.render(user, func(w io.Writer) {
		fmt.Fprintf(w, "Profile updated: %s <%s>\n", user.Username, user.Email)
	})
}

func runPasswd(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	var in banksdk.ChangePasswordRequest
	fs.StringVar(&in.OldPassword, "old", "", "current password (prompted when empty)")
	fs.StringVar(&in.NewPassword, "new", "", "new password (prompted when empty)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	var err error
	if in.OldPassword == "" {
		if in.OldPassword, err = app.prompt("Current password: "); err != nil {
			return err
		}
	}
	if in.NewPassword == "" {
		if in.NewPassword, err = app.prompt("New password: "); err != nil {
			return err
		}
	}

	if err := app.session.ChangePassword(ctx, in); err != nil {
		return err
	}
	fmt.Fprintln(app.stderr, "Password changed.")
	return nil
}

func runAvatar(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read picture: %w", err)
	}

	user, err := app.session.UploadProfilePicture(ctx, filepath.Base(path), data)
	if err != nil {
		return err
	}
	return app.render(user, func(w io.Writer) {
		fmt.Fprintf(w, "Profile picture set: %s\n", user.ProfilePicture)
	})
}

// ============================================================================
// Cards
// ============================================================================

func maskedNumber(c banksdk.Card) string {
	return "**** **** **** " + c.MaskedNumber
}

func cardStatus(c banksdk.Card) string {
	switch {
	case c.IsBlocked:
		return "blocked"
	case !c.IsActive:
		return "inactive"
	default:
		return "active"
	}
}

func runCards(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	cards, err := app.session.ListCards(ctx)
	if err != nil {
		return err
	}

	return app.render(cards, func(w io.Writer) {
		if len(cards) == 0 {
			fmt.Fprintln(w, "No cards.")
			return
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tHOLDER\tNUMBER\tEXPIRY\tDAILY LIMIT\tSTATUS")
		for _, c := range cards {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.CardHolderName, maskedNumber(c), c.ExpiryDate, c.DailyLimit.StringFixed(2), cardStatus(c))
		}
		_ = tw.Flush()
	})
}

func runCardAdd(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	var in banksdk.NewCard
	fs.StringVar(&in.CardHolderName, "holder", "", "card holder name")
	fs.StringVar(&in.CardNumber, "number", "", "card number")
	fs.StringVar(&in.CVV, "cvv", "", "card security code")
	fs.StringVar(&in.ExpiryDate, "expiry", "", "expiry date as MM/YY")
	limit := fs.String("limit", "", "daily limit (backend default when empty)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	if *limit != "" {
		v, err := decimal.NewFromString(*limit)
		if err != nil {
			return usagef("card-add: invalid --limit %q", *limit)
		}
		in.DailyLimit = &v
	}

	card, err := app.session.CreateCard(ctx, in)
	if err != nil {
		return err
	}
	return app.render(card, func(w io.Writer) {
		fmt.Fprintf(w, "Card %s added (%s).\n", card.ID, maskedNumber(*card))
	})
}

func runCardLimit(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 2); err != nil {
		return err
	}

	limit, err := decimal.NewFromString(fs.Arg(1))
	if err != nil {
		return usagef("card-limit: invalid amount %q", fs.Arg(1))
	}

	card, err := app.session.UpdateCardLimit(ctx, fs.Arg(0), limit)
	if err != nil {
		return err
	}
	return app.render(card, func(w io.Writer) {
		fmt.Fprintf(w, "Card %s daily limit is now %s.\n", card.ID, card.DailyLimit.StringFixed(2))
	})
}

func runCardBlock(blocked bool) func(context.Context, *Application, *flag.FlagSet, []string) error {
	return func(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
		if err := parse(fs, args, 1); err != nil {
			return err
		}

		id := fs.Arg(0)
		if blocked {
			if err := app.session.BlockCard(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "Card %s blocked.\n", id)
			return nil
		}
		if err := app.session.UnblockCard(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "Card %s unblocked.\n", id)
		return nil
	}
}

func runCardDelete(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	if err := app.session.DeleteCard(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "Card %s deleted.\n", fs.Arg(0))
	return nil
}

// ============================================================================
// Transactions
// ============================================================================

func runTransactions(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	var filter banksdk.TransactionFilter
	fs.StringVar(&filter.Card, "card", "", "only this card")
	kind := fs.String("type", "", "PAYMENT, REFUND or WITHDRAWAL")
	fs.StringVar(&filter.Status, "status", "", "PENDING, COMPLETED or FAILED")
	fs.StringVar(&filter.Ordering, "order", "-timestamp", "timestamp or amount, prefix - for descending")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	filter.Type = banksdk.TransactionType(strings.ToUpper(*kind))

	txs, err := app.session.ListTransactions(ctx, filter)
	if err != nil {
		return err
	}

	return app.render(txs, func(w io.Writer) {
		if len(txs) == 0 {
			fmt.Fprintln(w, "No transactions.")
			return
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tWHEN\tCARD\tTYPE\tAMOUNT\tMERCHANT\tSTATUS")
		for _, tx := range txs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				tx.ID, tx.Timestamp.Local().Format(time.DateTime), tx.Card, tx.TransactionType,
				tx.Amount.StringFixed(2), tx.Merchant, tx.Status)
		}
		_ = tw.Flush()
	})
}

func runPay(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	var in banksdk.NewTransaction
	fs.StringVar(&in.CardID, "card", "", "card id")
	amount := fs.String("amount", "", "amount")
	fs.StringVar(&in.Merchant, "merchant", "", "merchant name")
	fs.StringVar(&in.Location, "location", "", "merchant location")
	kind := fs.String("type", string(banksdk.TransactionPayment), "PAYMENT, REFUND or WITHDRAWAL")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	v, err := decimal.NewFromString(*amount)
	if err != nil {
		return usagef("pay: invalid --amount %q", *amount)
	}
	in.Amount = v
	in.TransactionType = banksdk.TransactionType(strings.ToUpper(*kind))

	tx, err := app.session.CreateTransaction(ctx, in)
	if err != nil {
		return err
	}
	return app.render(tx, func(w io.Writer) {
		fmt.Fprintf(w, "%s of %s at %s: %s (ref %s)\n",
			tx.TransactionType, tx.Amount.StringFixed(2), tx.Merchant, tx.Status, tx.ReferenceID)
	})
}

// ============================================================================
// Analytics and monitoring
// ============================================================================

func periodFlag(fs *flag.FlagSet) *string {
	return fs.String("period", "", "week, month or year (backend default is month)")
}

func runStats(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	period := periodFlag(fs)
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	stats, err := app.session.Stats(ctx, banksdk.Period(*period))
	if err != nil {
		return err
	}

	return app.render(stats, func(w io.Writer) {
		s := stats.Summary
		fmt.Fprintf(w, "%s: %s to %s\n", stats.Period,
			stats.StartDate.Local().Format(time.DateOnly), stats.EndDate.Local().Format(time.DateOnly))
		fmt.Fprintf(w, "Spent %s over %d transactions (average %s), %d of %d cards active\n",
			s.TotalSpent.StringFixed(2), s.TransactionCount, s.AverageTransaction.StringFixed(2), s.ActiveCards, s.TotalCards)

		if len(stats.TopMerchants) > 0 {
			fmt.Fprintln(w)
			tw := newTable(w)
			fmt.Fprintln(tw, "MERCHANT\tTOTAL\tCOUNT")
			for _, m := range stats.TopMerchants {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Merchant, m.Total.StringFixed(2), m.Count)
			}
			_ = tw.Flush()
		}
	})
}

func runDashboard(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	dash, err := app.session.Dashboard(ctx)
	if err != nil {
		return err
	}

	return app.render(dash, func(w io.Writer) {
		fmt.Fprintf(w, "Cards: %d (%d active, %d blocked)\n", dash.Cards.Total, dash.Cards.Active, dash.Cards.Blocked)
		fmt.Fprintf(w, "This month: %s over %d transactions\n",
			dash.MonthlySpending.Total.StringFixed(2), dash.MonthlySpending.TransactionCount)
		fmt.Fprintf(w, "Recent activity: %d\n", dash.RecentActivity)
	})
}

func runTrends(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	period := periodFlag(fs)
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	trends, err := app.session.Trends(ctx, banksdk.Period(*period))
	if err != nil {
		return err
	}

	return app.render(trends, func(w io.Writer) {
		if len(trends.Trends) == 0 {
			fmt.Fprintln(w, "No spending in this period.")
			return
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "DATE\tTOTAL\tCOUNT")
		for _, p := range trends.Trends {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Date, p.Total.StringFixed(2), p.Count)
		}
		_ = tw.Flush()
	})
}

func runAudit(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	logs, err := app.session.ListAuditLogs(ctx)
	if err != nil {
		return err
	}

	return app.render(logs, func(w io.Writer) {
		tw := newTable(w)
		fmt.Fprintln(tw, "WHEN\tACTION\tIP\tRISK\tDETAILS")
		for _, l := range logs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				l.Timestamp.Local().Format(time.DateTime), l.Action, l.IPAddress, l.RiskScore, formatDetails(l.Details))
		}
		_ = tw.Flush()
	})
}

func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func runDevices(ctx context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	devices, err := app.session.ListDevices(ctx)
	if err != nil {
		return err
	}

	return app.render(devices, func(w io.Writer) {
		tw := newTable(w)
		fmt.Fprintln(tw, "LAST LOGIN\tIP\tOS\tBROWSER\tTRUSTED")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				d.LastLogin.Local().Format(time.DateTime), d.IPAddress, d.OS, d.Browser, yesNo(d.IsTrusted))
		}
		_ = tw.Flush()
	})
}

func runVersion(_ context.Context, app *Application, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if app.jsonOutput() {
		return app.render(map[string]string{"version": BuildVersion}, nil)
	}

	fmt.Fprint(app.stdout, figure.NewFigure(serviceName, "cybermedium", true).String())
	fmt.Fprintf(app.stdout, "\n%s %s\n", serviceName, BuildVersion)
	return nil
}
