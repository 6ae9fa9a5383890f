/*
Package banksdk is the client session layer for the Secure Digital Card backend.

# Overview

The backend issues a short-lived access credential and a longer-lived refresh
credential on sign-in. Every protected call carries the access credential as a
bearer token. When the backend answers 401, the client renews the pair once and
replays the call. If renewal is impossible the session ends and the caller is
sent back to sign-in.

The package is organized around four pieces:

  - CredentialStore: the two named slots, "access" and "refresh"
  - Dispatcher: sends a Request, attaching the stored access credential
  - Coordinator: turns a 401 into one shared renewal and one replay
  - Session: sign-in, sign-out, current user and the resource calls

# Signing In

	session, err := banksdk.New(banksdk.Config{
		BaseURL: "http://localhost:8000/api",
		OnLogout: func(ctx context.Context, reason banksdk.LogoutReason) {
			// route to the sign-in screen
		},
	})

	user, err := session.Login(ctx, "ada@example.com", "correct horse")
	var mfa *banksdk.MFARequiredError
	if errors.As(err, &mfa) {
		user, err = session.CompleteMFA(ctx, mfa, code)
	}

Face sign-in takes a JPEG data URL, usually produced by a Capturer:

	user, err := session.LoginWithCamera(ctx, capturer)

A rejected password or face is an *AuthError. It never touches the stored
credentials and never starts a renewal.

# Renewal

All resource calls go through Session.Authorized, which is the Dispatcher
wrapped by the Coordinator:

	cards, err := session.ListCards(ctx)

For a burst of concurrent requests that all get 401:

 1. The first to arrive starts the exchange against POST /auth/login/refresh/
 2. The others wait on the same exchange; exactly one reaches the backend
 3. Every waiter replays its own request once with the new access credential

A request that was sent with a credential that a finished renewal already
replaced is replayed directly without a new exchange. The exchange is detached
from the cancellation of whichever caller started it; a caller that gives up
only stops waiting.

If the exchange fails, or there is no refresh credential, both slots are
cleared, OnLogout fires with LogoutExpired, and every waiter gets a
*SessionExpiredError. The replay result is final: a second 401 is returned as
its *HTTPError.

# Errors

  - *HTTPError: any non-2xx response, with the raw body
  - *AuthError: credential or image not accepted
  - *MFARequiredError: the account needs a one-time code
  - *SessionExpiredError: renewal failed; matches ErrSessionExpired
  - *ValidationError: input rejected locally or by a backend 400, keyed by
    wire field name ("password2" for a registration mismatch)

# Thread Safety

A Session and its stores are safe for concurrent use.
*/
package banksdk
