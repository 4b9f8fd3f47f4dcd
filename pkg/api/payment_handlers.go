package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
	"github.com/platinummonkey/joboost/pkg/observability"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// createCheckout opens a checkout session for the requested plan.
func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, strings.TrimSpace(req.Plan), "plan") {
		return
	}
	origin := req.OriginURL
	if origin == "" {
		origin = r.Header.Get("Origin")
	}

	checkout, err := s.checkouts.CreateCheckout(r.Context(), middleware.UserID(r), req.Plan, origin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, CheckoutResponse{URL: checkout.RedirectURL, SessionID: checkout.SessionID})
}

// paymentStatus is the pull path: it asks the provider for the session status
// and settles the transaction if the payment went through.
func (s *Server) paymentStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session_id")
	if !ok {
		return
	}

	snapshot, err := s.payments.PollStatus(r.Context(), middleware.UserID(r), sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, snapshot)
}

// stripeWebhook is the push path. Once the signature checks out the provider
// always gets a 200, with the outcome in the body.
func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteBadRequest(w, "unreadable body")
		return
	}

	ack, err := s.payments.HandleWebhook(r.Context(), payload, r.Header.Get(StripeSignatureHeader))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			httputil.WriteBadRequest(w, "invalid signature")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("Webhook handling failed")
		ack = billing.WebhookAck{Status: billing.AckError, Message: "internal error"}
	}

	httputil.WriteSuccess(w, ack)
}
