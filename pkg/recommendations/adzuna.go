package recommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/joboost/pkg/observability"
)

// DefaultAdzunaURL is the Adzuna jobs API root.
const DefaultAdzunaURL = "https://api.adzuna.com/v1/api/jobs"

const adzunaResultsPerPage = "10"

// AdzunaConfig configures the Adzuna client.
type AdzunaConfig struct {
	AppID   string
	AppKey  string
	BaseURL string
	// Country is the Adzuna country code, "fr" by default.
	Country    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AdzunaClient searches Adzuna. It returns no offers when it has no
// credentials or Adzuna fails.
type AdzunaClient struct {
	appID      string
	appKey     string
	baseURL    string
	country    string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewAdzunaClient creates an Adzuna client.
func NewAdzunaClient(cfg AdzunaConfig, logger *observability.Logger) *AdzunaClient {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAdzunaURL
	}
	if cfg.Country == "" {
		cfg.Country = "fr"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &AdzunaClient{
		appID:      cfg.AppID,
		appKey:     cfg.AppKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		country:    cfg.Country,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name implements Source.
func (c *AdzunaClient) Name() string { return "Adzuna" }

// Configured reports whether both credentials are set.
func (c *AdzunaClient) Configured() bool { return c.appID != "" && c.appKey != "" }

type adzunaLabel struct {
	DisplayName string `json:"display_name"`
}

type adzunaJob struct {
	Title        string      `json:"title"`
	Company      adzunaLabel `json:"company"`
	Location     adzunaLabel `json:"location"`
	RedirectURL  string      `json:"redirect_url"`
	Description  string      `json:"description"`
	SalaryMin    float64     `json:"salary_min"`
	SalaryMax    float64     `json:"salary_max"`
	ContractType string      `json:"contract_type"`
}

type adzunaResponse struct {
	Count   int         `json:"count"`
	Results []adzunaJob `json:"results"`
}

// Search implements Source. Only a cancelled context is reported as an error.
func (c *AdzunaClient) Search(ctx context.Context, q Query) ([]Listing, error) {
	if !c.Configured() {
		return nil, nil
	}
	logger := c.logger.WithFields(map[string]interface{}{
		"keywords": q.Keywords,
		"location": q.Location,
	})

	u, err := url.Parse(fmt.Sprintf("%s/%s/search/1", c.baseURL, url.PathEscape(c.country)))
	if err != nil {
		return nil, fmt.Errorf("invalid adzuna url: %w", err)
	}
	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)
	params.Set("what", q.Keywords)
	params.Set("where", q.Location)
	params.Set("results_per_page", adzunaResultsPerPage)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("Adzuna request failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.WithField("status", resp.StatusCode).Warn("Adzuna returned an error")
		return nil, nil
	}

	var out adzunaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		logger.WithError(err).Warn("Adzuna response unreadable")
		return nil, nil
	}

	listings := make([]Listing, 0, len(out.Results))
	for _, j := range out.Results {
		listings = append(listings, Listing{
			Title:       j.Title,
			Company:     j.Company.DisplayName,
			Location:    j.Location.DisplayName,
			URL:         j.RedirectURL,
			Description: j.Description,
			Salary:      salaryRange(j.SalaryMin, j.SalaryMax),
			Type:        contractType(j.ContractType),
			Source:      c.Name(),
		})
	}
	return listings, nil
}

func salaryRange(lo, hi float64) string {
	switch {
	case lo > 0 && hi > lo:
		return fmt.Sprintf("%.0f - %.0f €", lo, hi)
	case lo > 0:
		return fmt.Sprintf("%.0f €", lo)
	case hi > 0:
		return fmt.Sprintf("%.0f €", hi)
	}
	return ""
}

func contractType(t string) string {
	switch t {
	case "permanent":
		return "CDI"
	case "contract":
		return "CDD"
	}
	return ""
}
