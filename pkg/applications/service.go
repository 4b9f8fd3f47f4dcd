package applications

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/joboost/pkg/observability"
)

const (
	// maxApplications bounds list, stats and timeline reads.
	maxApplications = 1000
	dateLayout      = "2006-01-02"
)

// Service manages master profiles and the application board.
type Service struct {
	store  Store
	logger *observability.Logger
	now    func() time.Time
}

// NewService creates a service over store.
func NewService(store Store, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// NewApplicationID returns an id of the form app_<12 hex chars>.
func NewApplicationID() string {
	return "app_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// GetProfile returns the user's profile, or ErrProfileNotFound.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

// SaveProfile creates or replaces the user's profile. Entries without an id
// get one.
func (s *Service) SaveProfile(ctx context.Context, userID string, p Profile) (*Profile, error) {
	p.UserID = userID
	p.UpdatedAt = s.now().UTC()
	p.CreatedAt = p.UpdatedAt
	for i := range p.Experiences {
		if p.Experiences[i].ID == "" {
			p.Experiences[i].ID = uuid.NewString()
		}
	}
	for i := range p.Education {
		if p.Education[i].ID == "" {
			p.Education[i].ID = uuid.NewString()
		}
	}
	saved, err := s.store.PutProfile(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return saved, nil
}

// Create adds an application to the board.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*Application, error) {
	if strings.TrimSpace(in.CompanyName) == "" || strings.TrimSpace(in.JobTitle) == "" {
		return nil, fmt.Errorf("%w: company_name and job_title are required", ErrInvalidApplication)
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &Application{
		ID:             NewApplicationID(),
		UserID:         userID,
		CompanyName:    in.CompanyName,
		JobTitle:       in.JobTitle,
		JobURL:         in.JobURL,
		JobDescription: in.JobDescription,
		Status:         status,
		Notes:          in.Notes,
		Deadline:       in.Deadline,
		SalaryRange:    in.SalaryRange,
		Location:       in.Location,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateApplication(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	observability.LoggerWithTrace(ctx, s.logger).WithField("application_id", a.ID).Info("Application created")
	return a, nil
}

// Get returns one of the user's applications.
func (s *Service) Get(ctx context.Context, userID, applicationID string) (*Application, error) {
	return s.store.GetApplication(ctx, userID, applicationID)
}

// List returns the user's applications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*Application, error) {
	return s.store.ListApplications(ctx, userID, maxApplications)
}

// Update applies the non-nil fields of p.
func (s *Service) Update(ctx context.Context, userID, applicationID string, p Patch) (*Application, error) {
	var status Status
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	now := s.now().UTC()
	return s.store.UpdateApplication(ctx, userID, applicationID, func(a *Application) error {
		setIf(&a.CompanyName, p.CompanyName)
		setIf(&a.JobTitle, p.JobTitle)
		setIf(&a.JobURL, p.JobURL)
		setIf(&a.JobDescription, p.JobDescription)
		setIf(&a.Notes, p.Notes)
		setIf(&a.Deadline, p.Deadline)
		setIf(&a.SalaryRange, p.SalaryRange)
		setIf(&a.Location, p.Location)
		if status != "" {
			a.Status = status
		}
		if strings.TrimSpace(a.CompanyName) == "" || strings.TrimSpace(a.JobTitle) == "" {
			return fmt.Errorf("%w: company_name and job_title cannot be empty", ErrInvalidApplication)
		}
		a.UpdatedAt = now
		return nil
	})
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// SetStatus moves an application to another board column.
func (s *Service) SetStatus(ctx context.Context, userID, applicationID, status string) (*Application, error) {
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidStatus)
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return s.store.UpdateApplication(ctx, userID, applicationID, func(a *Application) error {
		a.Status = st
		a.UpdatedAt = now
		return nil
	})
}

// Delete removes one of the user's applications.
func (s *Service) Delete(ctx context.Context, userID, applicationID string) error {
	return s.store.DeleteApplication(ctx, userID, applicationID)
}

// AttachDocument stores generated content on the application.
func (s *Service) AttachDocument(ctx context.Context, userID, applicationID string, doc Document, content string) (*Application, error) {
	now := s.now().UTC()
	return s.store.UpdateApplication(ctx, userID, applicationID, func(a *Application) error {
		a.Attach(doc, content)
		a.UpdatedAt = now
		return nil
	})
}

// Stats counts the user's applications per status.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	apps, err := s.List(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, a := range apps {
		st.add(a.Status)
	}
	return st, nil
}

// Timeline groups the user's applications by UTC creation day, oldest first.
func (s *Service) Timeline(ctx context.Context, userID string) ([]TimelinePoint, error) {
	apps, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	days := make(map[string]*TimelinePoint)
	for _, a := range apps {
		day := a.CreatedAt.UTC().Format(dateLayout)
		p, ok := days[day]
		if !ok {
			p = &TimelinePoint{Date: day}
			days[day] = p
		}
		p.add(a.Status)
	}

	out := make([]TimelinePoint, 0, len(days))
	for _, p := range days {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
