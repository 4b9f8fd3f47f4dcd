package recommendations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/observability"
)

const (
	maxOffers        = 15
	defaultKeywords  = "Développeur"
	defaultLocation  = "Paris"
	noProfileMessage = "Complétez votre profil pour recevoir des recommandations personnalisées"
)

// Service recommends job offers matching the user's master profile.
type Service struct {
	profiles ProfileReader
	sources  []Source
	logger   *observability.Logger
}

// NewService creates a service searching every source in parallel.
func NewService(profiles ProfileReader, sources []Source, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{profiles: profiles, sources: sources, logger: logger}
}

// Recommend searches the job boards for the profile title around the
// profile location, and returns the best matching offers first. A user
// without a profile gets no offers and a message asking to fill it in.
func (s *Service) Recommend(ctx context.Context, userID string) (*Result, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, applications.ErrProfileNotFound) {
		return &Result{Offers: []Offer{}, Message: noProfileMessage}, nil
	}
	if err != nil {
		return nil, err
	}

	q := Query{Keywords: strings.TrimSpace(profile.Title), Location: strings.TrimSpace(profile.Location)}
	if q.Keywords == "" {
		q.Keywords = defaultKeywords
	}
	if q.Location == "" {
		q.Location = defaultLocation
	}

	results := make([][]Listing, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			listings, err := src.Search(gctx, q)
			if err != nil {
				return fmt.Errorf("%s search: %w", src.Name(), err)
			}
			results[i] = listings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offers := []Offer{}
	for _, listings := range results {
		for _, l := range listings {
			offers = append(offers, toOffer(l, q.Location, profile.Skills))
		}
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].MatchScore > offers[j].MatchScore })
	if len(offers) > maxOffers {
		offers = offers[:maxOffers]
	}

	observability.LoggerWithTrace(ctx, s.logger).WithFields(map[string]interface{}{
		"user_id":  userID,
		"keywords": q.Keywords,
		"offers":   len(offers),
	}).Debug("Recommendations computed")
	return &Result{Offers: offers}, nil
}

func toOffer(l Listing, location string, skills []string) Offer {
	o := Offer{
		Title:      l.Title,
		Company:    l.Company,
		Location:   l.Location,
		URL:        l.URL,
		Source:     l.Source,
		MatchScore: MatchScore(skills, l.Description),
		Salary:     l.Salary,
		Type:       l.Type,
	}
	if o.Company == "" {
		o.Company = "Entreprise"
	}
	if o.Location == "" {
		o.Location = location
	}
	if o.URL == "" {
		o.URL = "#"
	}
	if o.Type == "" {
		o.Type = "CDI"
	}
	return o
}
