package spontaneous

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/platinummonkey/joboost/pkg/credentials"
	"github.com/platinummonkey/joboost/pkg/observability"
)

// DefaultLaBonneBoiteURL is the company search endpoint.
const DefaultLaBonneBoiteURL = "https://labonneboite.pole-emploi.fr/api/v1/company/"

// CredentialName is the credential cache entry used for France Travail APIs.
const CredentialName = "francetravail"

// LaBonneBoiteConfig configures the company search client.
type LaBonneBoiteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// LaBonneBoiteClient searches companies through the La Bonne Boîte API. When
// the API is not configured or answers with an error, it serves the built-in
// sample listing instead, flagged with Fallback.
type LaBonneBoiteClient struct {
	baseURL    string
	httpClient *http.Client
	credential *credentials.Credential
	logger     *observability.Logger
}

// NewLaBonneBoiteClient creates a client that authorizes requests with cred.
func NewLaBonneBoiteClient(cfg LaBonneBoiteConfig, cred *credentials.Credential, logger *observability.Logger) *LaBonneBoiteClient {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLaBonneBoiteURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &LaBonneBoiteClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		credential: cred,
		logger:     logger,
	}
}

type lbbCompany struct {
	Siret         string  `json:"siret"`
	Name          string  `json:"name"`
	NAF           string  `json:"naf"`
	NAFText       string  `json:"naf_text"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	HeadcountText string  `json:"headcount_text"`
	Stars         float64 `json:"stars"`
	URL           string  `json:"url"`
	Website       string  `json:"website"`
	ContactMode   string  `json:"contact_mode"`
}

type lbbResponse struct {
	Companies      []lbbCompany `json:"companies"`
	CompaniesCount int          `json:"companies_count"`
}

// FindCompanies searches companies hiring for rome around location.
func (c *LaBonneBoiteClient) FindCompanies(ctx context.Context, location, rome string, radiusKm int) (*SearchResult, error) {
	logger := c.logger.WithFields(map[string]interface{}{
		"location": location,
		"rome":     rome,
	})

	req, err := c.newRequest(ctx, location, rome, radiusKm)
	if err != nil {
		return nil, err
	}
	if c.credential != nil {
		if err := c.credential.Authorize(req); err != nil {
			if errors.Is(err, credentials.ErrNotConfigured) {
				logger.Debug("La Bonne Boite credentials not configured, serving sample companies")
				return sampleCompanies(location), nil
			}
			return nil, fmt.Errorf("company search: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("La Bonne Boite request failed, serving sample companies")
		return sampleCompanies(location), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.credential != nil {
		c.credential.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.WithField("status", resp.StatusCode).Warn("La Bonne Boite returned an error, serving sample companies")
		return sampleCompanies(location), nil
	}

	var body lbbResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		logger.WithError(err).Warn("La Bonne Boite response unreadable, serving sample companies")
		return sampleCompanies(location), nil
	}

	out := &SearchResult{Location: location, Companies: make([]Company, 0, len(body.Companies))}
	for _, lc := range body.Companies {
		out.Companies = append(out.Companies, lc.toCompany())
	}
	out.Total = len(out.Companies)
	return out, nil
}

func (c *LaBonneBoiteClient) newRequest(ctx context.Context, location, rome string, radiusKm int) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid company search url: %w", err)
	}
	q := u.Query()
	q.Set("commune", location)
	q.Set("rome_codes", rome)
	q.Set("distance", strconv.Itoa(radiusKm))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (lc lbbCompany) toCompany() Company {
	website := lc.Website
	if website == "" {
		website = lc.URL
	}
	return Company{
		ID:          lc.Siret,
		Name:        lc.Name,
		Siret:       lc.Siret,
		NAF:         lc.NAF,
		Address:     lc.Address,
		City:        lc.City,
		Headcount:   lc.HeadcountText,
		HiringScore: int(math.Round(lc.Stars / 5 * 100)),
		ContactMode: lc.ContactMode,
		Website:     website,
		Sector:      lc.NAFText,
	}
}

// sampleCompanies is the demonstration listing served when the API is unavailable.
func sampleCompanies(location string) *SearchResult {
	companies := []Company{
		{ID: "comp_001", Name: "Tech Solutions Paris", Siret: "12345678901234", NAF: "6201Z", Address: "15 Rue de l'Innovation, " + location, City: location, Headcount: "50-99", HiringScore: 85, ContactMode: "email", Website: "https://techsolutions.fr", Sector: "Développement informatique"},
		{ID: "comp_002", Name: "Digital Factory", Siret: "98765432109876", NAF: "6201Z", Address: "28 Avenue des Startups, " + location, City: location, Headcount: "20-49", HiringScore: 78, ContactMode: "form", Website: "https://digitalfactory.io", Sector: "Conseil en systèmes informatiques"},
		{ID: "comp_003", Name: "InnovateTech", Siret: "45678901234567", NAF: "6202A", Address: "5 Place de l'Innovation, " + location, City: location, Headcount: "100-249", HiringScore: 92, ContactMode: "email", Website: "https://innovatetech.fr", Sector: "Conseil en informatique"},
		{ID: "comp_004", Name: "CloudNine Solutions", Siret: "78901234567890", NAF: "6311Z", Address: "42 Boulevard du Cloud, " + location, City: location, Headcount: "10-19", HiringScore: 70, ContactMode: "email", Website: "https://cloudnine.fr", Sector: "Hébergement et traitement de données"},
		{ID: "comp_005", Name: "DataVision", Siret: "23456789012345", NAF: "6202B", Address: "8 Rue des Données, " + location, City: location, Headcount: "50-99", HiringScore: 88, ContactMode: "form", Website: "https://datavision.fr", Sector: "Data Science & Analytics"},
	}
	return &SearchResult{Companies: companies, Total: len(companies), Location: location, Fallback: true}
}
