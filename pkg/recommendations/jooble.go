package recommendations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/joboost/pkg/observability"
)

// DefaultJoobleURL is the Jooble search endpoint. The API key is appended as
// a path segment.
const DefaultJoobleURL = "https://jooble.org/api"

// JoobleConfig configures the Jooble client.
type JoobleConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// JoobleClient searches Jooble. Without an API key, or when Jooble fails, it
// serves the built-in sample offers.
type JoobleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewJoobleClient creates a Jooble client.
func NewJoobleClient(cfg JoobleConfig, logger *observability.Logger) *JoobleClient {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJoobleURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &JoobleClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name implements Source.
func (c *JoobleClient) Name() string { return "Jooble" }

type joobleRequest struct {
	Keywords string `json:"keywords"`
	Location string `json:"location"`
	Page     int    `json:"page"`
}

type joobleJob struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Salary   string `json:"salary"`
	Type     string `json:"type"`
}

type joobleResponse struct {
	TotalCount int         `json:"totalCount"`
	Jobs       []joobleJob `json:"jobs"`
}

// Search implements Source. Only a cancelled context is reported as an error.
func (c *JoobleClient) Search(ctx context.Context, q Query) ([]Listing, error) {
	logger := c.logger.WithFields(map[string]interface{}{
		"keywords": q.Keywords,
		"location": q.Location,
	})
	if c.apiKey == "" {
		logger.Debug("Jooble API key not configured, serving sample offers")
		return sampleListings(q.Location), nil
	}

	body, err := json.Marshal(joobleRequest{Keywords: q.Keywords, Location: q.Location, Page: 1})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid jooble url: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("Jooble request failed, serving sample offers")
		return sampleListings(q.Location), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.WithField("status", resp.StatusCode).Warn("Jooble returned an error, serving sample offers")
		return sampleListings(q.Location), nil
	}

	var out joobleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		logger.WithError(err).Warn("Jooble response unreadable, serving sample offers")
		return sampleListings(q.Location), nil
	}

	listings := make([]Listing, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		listings = append(listings, Listing{
			Title:       j.Title,
			Company:     j.Company,
			Location:    j.Location,
			URL:         j.Link,
			Description: j.Snippet,
			Salary:      j.Salary,
			Type:        j.Type,
			Source:      c.Name(),
		})
	}
	return listings, nil
}

// sampleListings is the demonstration listing served when Jooble is unavailable.
func sampleListings(location string) []Listing {
	listings := []Listing{
		{Title: "Développeur Full Stack Senior", Company: "TechCorp France", URL: "https://example.com/job/1", Salary: "50 000 - 65 000 €",
			Description: "Nous recherchons un développeur Full Stack expérimenté maîtrisant React, Node.js, Python, et les bases de données SQL/NoSQL. Environnement agile, télétravail partiel."},
		{Title: "Lead Developer Python", Company: "DataFlow Solutions", URL: "https://example.com/job/2", Salary: "60 000 - 75 000 €",
			Description: "Poste de Lead Developer Python pour projet data. Compétences requises: Python, FastAPI, Django, PostgreSQL, Docker, Kubernetes. Management d'équipe de 3 devs."},
		{Title: "Frontend Developer React", Company: "UX Digital Agency", URL: "https://example.com/job/3", Salary: "42 000 - 55 000 €",
			Description: "Développeur React.js passionné pour interfaces innovantes. Stack: React, TypeScript, Tailwind CSS, Next.js. Startup en croissance, équipe jeune et dynamique."},
		{Title: "DevOps Engineer", Company: "CloudScale", URL: "https://example.com/job/4", Salary: "55 000 - 70 000 €",
			Description: "Ingénieur DevOps pour infrastructure cloud. AWS, Terraform, Docker, Kubernetes, CI/CD (GitLab). Monitoring avec Prometheus/Grafana."},
		{Title: "Data Engineer", Company: "Analytics Pro", URL: "https://example.com/job/5", Salary: "48 000 - 62 000 €",
			Description: "Data Engineer pour plateforme big data. Python, Spark, Airflow, dbt, Snowflake. Construction de pipelines ETL robustes."},
		{Title: "Chef de Projet IT", Company: "Consulting Group", URL: "https://example.com/job/6", Salary: "52 000 - 68 000 €",
			Description: "Chef de projet IT pour missions variées. Méthodologies Agile/Scrum, gestion budgétaire, relation client. Certifications PMP ou PRINCE2 appréciées."},
		{Title: "Architecte Solutions Cloud", Company: "Enterprise Tech", URL: "https://example.com/job/7", Salary: "75 000 - 95 000 €",
			Description: "Architecte cloud pour transformation digitale grands comptes. Azure, AWS, architecture microservices, API management. 10+ ans d'expérience."},
		{Title: "Product Manager", Company: "StartupVision", URL: "https://example.com/job/8", Salary: "55 000 - 72 000 €",
			Description: "Product Manager pour application SaaS B2B. Discovery produit, roadmap, analytics, coordination dev/design. Background tech apprécié."},
	}
	for i := range listings {
		listings[i].Location = location
		listings[i].Type = "CDI"
		listings[i].Source = "Jooble"
	}
	return listings
}
