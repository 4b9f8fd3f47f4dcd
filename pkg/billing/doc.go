// Package billing sells plans through Stripe Checkout and turns confirmed
// payments into ledger grants.
//
// # Overview
//
// A purchase has three steps:
//
//  1. CheckoutManager.CreateCheckout opens a provider session for a
//     purchasable plan and records a pending Transaction keyed by session id.
//  2. The provider confirms the payment through a webhook (push), the client
//     polls the session status (pull), or the sweeper re-polls transactions
//     left pending (pull, unattended).
//  3. Every path calls Reconciler.Reconcile, which settles the transaction
//     and grants the plan's credits.
//
// # Idempotence
//
// Store.Settle only updates a transaction that is still pending, and runs the
// ledger grant inside the same store transaction. Whichever path arrives first
// applies the grant; later arrivals observe a terminal transaction and report
// OutcomeNoop. Replayed webhook events are additionally short-circuited by a
// bounded cache of processed event ids.
//
// # Grants
//
// A grant overwrites the three credit counters with the plan's values and
// raises the tier to the plan's tier when it is higher. It does not add to the
// remaining balance.
//
// # Usage Example
//
//	checkout := billing.NewCheckoutManager(catalog, provider, store, logger, metrics)
//	reconciler := billing.NewReconciler(store, provider, catalog, ledger, logger, metrics)
//
//	c, err := checkout.CreateCheckout(ctx, userID, plans.PlanProMonthly, "https://app.example.com")
//	// redirect the user to c.RedirectURL
//
//	snap, err := reconciler.PollStatus(ctx, userID, c.SessionID)
//
// # Errors
//
// ErrInvalidPlan and ErrInvalidReturnURL are client errors. ErrPaymentProvider
// and ErrReconciliation mean Stripe could not be reached or refused the call.
// ErrTransactionNotFound covers both unknown sessions and sessions owned by
// another user.
package billing
