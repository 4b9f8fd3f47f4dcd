package api

import (
	"context"
	"strings"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/generation"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/recommendations"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

// CheckoutService opens payment sessions.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, userID, planID, returnBaseURL string) (*billing.Checkout, error)
}

// PaymentReconciler settles payments from the poll and webhook paths.
type PaymentReconciler interface {
	PollStatus(ctx context.Context, userID, sessionID string) (*billing.StatusSnapshot, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (billing.WebhookAck, error)
}

// AccountService reads and creates entitlement records.
type AccountService interface {
	Register(ctx context.Context, userID string) (*ledger.Balance, error)
	GetBalance(ctx context.Context, userID string) (*ledger.Balance, error)
}

// DocumentService generates CVs and cover letters.
type DocumentService interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// ApplicationService manages the master profile and the application board.
type ApplicationService interface {
	GetProfile(ctx context.Context, userID string) (*applications.Profile, error)
	SaveProfile(ctx context.Context, userID string, p applications.Profile) (*applications.Profile, error)
	Create(ctx context.Context, userID string, in applications.Input) (*applications.Application, error)
	Get(ctx context.Context, userID, applicationID string) (*applications.Application, error)
	List(ctx context.Context, userID string) ([]*applications.Application, error)
	Update(ctx context.Context, userID, applicationID string, p applications.Patch) (*applications.Application, error)
	SetStatus(ctx context.Context, userID, applicationID, status string) (*applications.Application, error)
	Delete(ctx context.Context, userID, applicationID string) error
	Stats(ctx context.Context, userID string) (applications.Stats, error)
	Timeline(ctx context.Context, userID string) ([]applications.TimelinePoint, error)
}

// RecommendationService suggests job offers from the user's profile.
type RecommendationService interface {
	Recommend(ctx context.Context, userID string) (*recommendations.Result, error)
}

// SpontaneousService searches companies and sends spontaneous applications.
type SpontaneousService interface {
	Search(ctx context.Context, q spontaneous.SearchQuery) (*spontaneous.SearchResult, error)
	Send(ctx context.Context, userID string, companyIDs []string) (*spontaneous.Receipt, error)
	History(ctx context.Context, userID string, limit int) ([]*spontaneous.Send, error)
}

// CheckoutRequest is the body of POST /api/payments/checkout.
type CheckoutRequest struct {
	Plan      string `json:"plan"`
	OriginURL string `json:"origin_url"`
}

// CheckoutResponse tells the client where to redirect the user.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// PlansResponse lists the catalog.
type PlansResponse struct {
	Version string       `json:"version"`
	Plans   []plans.Plan `json:"plans"`
}

// CreditsResponse is a balance snapshot.
type CreditsResponse struct {
	Tier        plans.Tier `json:"tier"`
	CV          int64      `json:"cv_credits"`
	Letter      int64      `json:"letter_credits"`
	Spontaneous int64      `json:"spontaneous_credits"`
	Unlimited   bool       `json:"unlimited"`
}

func creditsResponse(b *ledger.Balance) CreditsResponse {
	return CreditsResponse{
		Tier:        b.Tier,
		CV:          b.CV,
		Letter:      b.Letter,
		Spontaneous: b.Spontaneous,
		Unlimited:   b.Unlimited(),
	}
}

// GenerateRequest is the body of POST /api/ai/generate. The job and the
// profile are read from the stored application and master profile.
type GenerateRequest struct {
	ApplicationID  string `json:"application_id"`
	GenerationType string `json:"generation_type"`
}

// ProfileResponse wraps the master profile, null until the user saves one.
type ProfileResponse struct {
	Profile *applications.Profile `json:"profile"`
	Message string                `json:"message,omitempty"`
}

// ApplicationResponse wraps one application.
type ApplicationResponse struct {
	Application *applications.Application `json:"application"`
	Message     string                    `json:"message,omitempty"`
}

// ApplicationsResponse lists applications, newest first.
type ApplicationsResponse struct {
	Applications []*applications.Application `json:"applications"`
}

// StatsResponse counts applications per status.
type StatsResponse struct {
	Stats applications.Stats `json:"stats"`
}

// TimelineResponse counts applications per creation day.
type TimelineResponse struct {
	Timeline []applications.TimelinePoint `json:"timeline"`
}

// MessageResponse is a bare confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// SearchRequest is the body of POST /api/spontaneous/search. Rome may hold
// several comma-separated codes.
type SearchRequest struct {
	Location  string   `json:"location"`
	Rome      string   `json:"rome"`
	ROMECodes []string `json:"rome_codes"`
	Radius    int      `json:"radius"`
}

func (r SearchRequest) query() spontaneous.SearchQuery {
	codes := append([]string(nil), r.ROMECodes...)
	for _, code := range strings.Split(r.Rome, ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	return spontaneous.SearchQuery{Location: r.Location, ROMECodes: codes, RadiusKm: r.Radius}
}

// SendRequest is the body of POST /api/spontaneous/send.
type SendRequest struct {
	CompanyIDs []string `json:"company_ids"`
}

// SendResponse acknowledges a spontaneous send.
type SendResponse struct {
	Message          string              `json:"message"`
	Sent             int                 `json:"sent"`
	CreditsRemaining int64               `json:"credits_remaining"`
	Sends            []*spontaneous.Send `json:"sends"`
}

// HistoryResponse lists past spontaneous sends.
type HistoryResponse struct {
	Sends []*spontaneous.Send `json:"sends"`
}
