package spontaneous

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
)

// maxParallelSearches bounds concurrent requests to the company search API.
const maxParallelSearches = 4

// Receipt describes a completed send.
type Receipt struct {
	Sent             int     `json:"sent"`
	CreditsRemaining int64   `json:"credits_remaining"`
	Sends            []*Send `json:"sends"`
}

// Service searches companies and records spontaneous applications, charging
// one spontaneous credit per company.
type Service struct {
	finder CompanyFinder
	guard  *ledger.Guard
	store  SendStore
	logger *observability.Logger
	now    func() time.Time
}

// NewService creates a spontaneous application service.
func NewService(finder CompanyFinder, guard *ledger.Guard, store SendStore, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{finder: finder, guard: guard, store: store, logger: logger, now: time.Now}
}

// Search looks up companies for every ROME code in q concurrently and merges
// the listings, best hiring score first. Companies found under several codes
// appear once.
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	location := strings.TrimSpace(q.Location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrInvalidQuery)
	}
	codes := normalizeCodes(q.ROMECodes)
	radius := q.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}

	results := make([]*SearchResult, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSearches)
	for i, code := range codes {
		g.Go(func() error {
			res, err := s.finder.FindCompanies(gctx, location, code, radius)
			if err != nil {
				return fmt.Errorf("search %s: %w", code, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &SearchResult{Location: location}
	seen := make(map[string]bool)
	for _, res := range results {
		merged.Fallback = merged.Fallback || res.Fallback
		for _, c := range res.Companies {
			key := c.ID
			if key == "" {
				key = c.Siret
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged.Companies = append(merged.Companies, c)
		}
	}
	if len(codes) > 1 {
		sort.SliceStable(merged.Companies, func(i, j int) bool {
			return merged.Companies[i].HiringScore > merged.Companies[j].HiringScore
		})
	}
	merged.Total = len(merged.Companies)
	return merged, nil
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool)
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	if len(out) == 0 {
		out = append(out, DefaultROME)
	}
	return out
}

// Send reserves one spontaneous credit per company, then records the sends.
// Credits stay debited if recording fails afterwards.
func (s *Service) Send(ctx context.Context, userID string, companyIDs []string) (*Receipt, error) {
	ids, err := validateSelection(companyIDs)
	if err != nil {
		return nil, err
	}

	balance, err := s.guard.Reserve(ctx, userID, ledger.PoolSpontaneous, int64(len(ids)))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sends := make([]*Send, 0, len(ids))
	for _, id := range ids {
		sends = append(sends, &Send{
			ID:        uuid.NewString(),
			UserID:    userID,
			CompanyID: id,
			Status:    SendStatusSent,
			CreatedAt: now,
		})
	}
	if err := s.store.RecordSends(ctx, sends); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"count":   len(sends),
		}).Error("Credits reserved but spontaneous applications could not be recorded")
		return nil, fmt.Errorf("failed to record applications: %w", err)
	}

	observability.FromContext(ctx).WithField("count", len(sends)).Info("Spontaneous applications sent")
	return &Receipt{Sent: len(sends), CreditsRemaining: balance.Spontaneous, Sends: sends}, nil
}

func validateSelection(companyIDs []string) ([]string, error) {
	ids := make([]string, 0, len(companyIDs))
	seen := make(map[string]bool, len(companyIDs))
	for _, id := range companyIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: company %s selected twice", ErrInvalidSelection, id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoCompanies
	}
	if len(ids) > MaxSendBatch {
		return nil, fmt.Errorf("%w: at most %d companies per send", ErrInvalidSelection, MaxSendBatch)
	}
	return ids, nil
}

// History returns the user's most recent spontaneous applications.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Send, error) {
	return s.store.ListSends(ctx, userID, limit)
}
