package spontaneous

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoCompanies is returned when a send names no company.
	ErrNoCompanies = errors.New("no companies selected")
	// ErrInvalidQuery is returned for searches without a location.
	ErrInvalidQuery = errors.New("invalid search query")
	// ErrInvalidSelection is returned when a send repeats a company or exceeds
	// MaxSendBatch.
	ErrInvalidSelection = errors.New("invalid company selection")
)

const (
	// DefaultROME is the ROME job code searched when none is given
	// (M1805: software development).
	DefaultROME = "M1805"
	// DefaultRadiusKm is the default search radius.
	DefaultRadiusKm = 10
	// MaxSendBatch bounds how many companies one send may target.
	MaxSendBatch = 100
)

// Company is an employer likely to accept spontaneous applications.
type Company struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Siret       string `json:"siret"`
	NAF         string `json:"naf"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Headcount   string `json:"headcount"`
	HiringScore int    `json:"hiring_score"`
	ContactMode string `json:"contact_mode"`
	Website     string `json:"website,omitempty"`
	Sector      string `json:"sector"`
}

// SearchQuery selects companies around a location.
type SearchQuery struct {
	Location  string
	ROMECodes []string
	RadiusKm  int
}

// SearchResult is the company listing returned to clients.
type SearchResult struct {
	Companies []Company `json:"companies"`
	Total     int       `json:"total"`
	Location  string    `json:"location"`
	// Fallback is set when the listing comes from the built-in sample data.
	Fallback bool `json:"fallback,omitempty"`
}

// SendStatus is the state of a spontaneous application.
type SendStatus string

const SendStatusSent SendStatus = "sent"

// Send records one spontaneous application to a company.
type Send struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CompanyID string     `json:"company_id"`
	Status    SendStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// SendStore persists spontaneous applications.
type SendStore interface {
	RecordSends(ctx context.Context, sends []*Send) error
	ListSends(ctx context.Context, userID string, limit int) ([]*Send, error)
}

// CompanyFinder looks up companies for one ROME code.
type CompanyFinder interface {
	FindCompanies(ctx context.Context, location, rome string, radiusKm int) (*SearchResult, error)
}
