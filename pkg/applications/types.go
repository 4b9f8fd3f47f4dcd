package applications

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrApplicationNotFound is returned for unknown applications and for
	// applications owned by another user.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrProfileNotFound is returned when the user has no master profile yet.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidStatus is returned for a status outside the tracking board.
	ErrInvalidStatus = errors.New("invalid application status")
	// ErrInvalidApplication is returned when required fields are missing.
	ErrInvalidApplication = errors.New("invalid application")
)

// Status is the column of the tracking board an application sits in.
type Status string

const (
	StatusTodo      Status = "todo"
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusApplied, StatusInterview, StatusOffer, StatusRejected}

// ParseStatus validates s. An empty value means StatusTodo.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusTodo, nil
	}
	for _, st := range Statuses {
		if Status(s) == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Document is a generated artifact attached to an application.
type Document string

const (
	DocumentCV          Document = "cv"
	DocumentCoverLetter Document = "cover_letter"
)

// Experience is one position in the master profile.
type Experience struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

// Education is one degree in the master profile.
type Education struct {
	ID          string `json:"id"`
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Profile is the user's master profile every document is generated from.
type Profile struct {
	UserID       string              `json:"user_id"`
	Title        string              `json:"title"`
	Summary      string              `json:"summary"`
	Experiences  []Experience        `json:"experiences"`
	Education    []Education         `json:"education"`
	Skills       []string            `json:"skills"`
	Languages    []map[string]string `json:"languages"`
	Phone        string              `json:"phone"`
	Location     string              `json:"location"`
	LinkedInURL  string              `json:"linkedin_url"`
	PortfolioURL string              `json:"portfolio_url"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Application is one tracked job application.
type Application struct {
	ID                   string    `json:"application_id"`
	UserID               string    `json:"user_id"`
	CompanyName          string    `json:"company_name"`
	JobTitle             string    `json:"job_title"`
	JobURL               string    `json:"job_url,omitempty"`
	JobDescription       string    `json:"job_description,omitempty"`
	Status               Status    `json:"status"`
	Notes                string    `json:"notes,omitempty"`
	Deadline             string    `json:"deadline,omitempty"`
	SalaryRange          string    `json:"salary_range,omitempty"`
	Location             string    `json:"location,omitempty"`
	GeneratedCoverLetter string    `json:"generated_cover_letter,omitempty"`
	GeneratedCV          string    `json:"generated_cv,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Attach stores content as the document of kind doc.
func (a *Application) Attach(doc Document, content string) {
	if doc == DocumentCoverLetter {
		a.GeneratedCoverLetter = content
		return
	}
	a.GeneratedCV = content
}

// Input holds the fields of a new application.
type Input struct {
	CompanyName    string `json:"company_name"`
	JobTitle       string `json:"job_title"`
	JobURL         string `json:"job_url"`
	JobDescription string `json:"job_description"`
	Status         string `json:"status"`
	Notes          string `json:"notes"`
	Deadline       string `json:"deadline"`
	SalaryRange    string `json:"salary_range"`
	Location       string `json:"location"`
}

// Patch holds a partial update. Nil fields are left unchanged.
type Patch struct {
	CompanyName    *string `json:"company_name"`
	JobTitle       *string `json:"job_title"`
	JobURL         *string `json:"job_url"`
	JobDescription *string `json:"job_description"`
	Status         *string `json:"status"`
	Notes          *string `json:"notes"`
	Deadline       *string `json:"deadline"`
	SalaryRange    *string `json:"salary_range"`
	Location       *string `json:"location"`
}

// Stats counts a user's applications per status.
type Stats struct {
	Total     int `json:"total"`
	Todo      int `json:"todo"`
	Applied   int `json:"applied"`
	Interview int `json:"interview"`
	Offer     int `json:"offer"`
	Rejected  int `json:"rejected"`
}

func (s *Stats) add(st Status) {
	s.Total++
	switch st {
	case StatusTodo:
		s.Todo++
	case StatusApplied:
		s.Applied++
	case StatusInterview:
		s.Interview++
	case StatusOffer:
		s.Offer++
	case StatusRejected:
		s.Rejected++
	}
}

// TimelinePoint counts the applications created on one day, by current status.
type TimelinePoint struct {
	Date string `json:"date"`
	Stats
}

// ApplicationMutator edits an application inside the store's write
// transaction. Returning an error aborts the update.
type ApplicationMutator func(a *Application) error

// Store persists profiles and applications. Every application lookup is
// scoped to its owner.
type Store interface {
	// GetProfile returns ErrProfileNotFound when the user has none.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// PutProfile inserts or replaces the profile, keeping the original
	// creation time.
	PutProfile(ctx context.Context, p *Profile) (*Profile, error)

	CreateApplication(ctx context.Context, a *Application) error
	GetApplication(ctx context.Context, userID, applicationID string) (*Application, error)
	// ListApplications returns the user's applications, newest first.
	ListApplications(ctx context.Context, userID string, limit int) ([]*Application, error)
	UpdateApplication(ctx context.Context, userID, applicationID string, fn ApplicationMutator) (*Application, error)
	DeleteApplication(ctx context.Context, userID, applicationID string) error
}
