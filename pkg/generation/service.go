package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
)

// configurable is implemented by generators that can report missing credentials.
type configurable interface {
	Configured() bool
}

// Service charges one credit from the kind's pool and generates the document.
type Service struct {
	generator Generator
	guard     *ledger.Guard
	workspace Workspace
	logger    *observability.Logger
}

// NewService creates a generation service.
func NewService(generator Generator, guard *ledger.Guard, workspace Workspace, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{generator: generator, guard: guard, workspace: workspace, logger: logger}
}

// Generate loads the application and the master profile, reserves a credit
// and calls the generator. The credit is spent even if generation fails
// afterwards. Missing credentials, an unknown application and a missing
// profile are all reported before any credit is reserved.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.ApplicationID) == "" {
		return nil, fmt.Errorf("%w: application_id is required", ErrInvalidRequest)
	}
	if req.Kind == "" {
		req.Kind = KindCV
	}
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if c, ok := s.generator.(configurable); ok && !c.Configured() {
		return nil, ErrNotConfigured
	}

	app, err := s.workspace.Get(ctx, req.UserID, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	profile, err := s.workspace.GetProfile(ctx, req.UserID)
	if errors.Is(err, applications.ErrProfileNotFound) {
		return nil, ErrProfileRequired
	}
	if err != nil {
		return nil, err
	}

	pool := req.Kind.Pool()
	balance, err := s.guard.Reserve(ctx, req.UserID, pool, 1)
	if err != nil {
		return nil, err
	}

	logger := observability.LoggerWithTrace(ctx, s.logger).WithFields(map[string]interface{}{
		"user_id":        req.UserID,
		"application_id": req.ApplicationID,
		"type":           req.Kind,
	})

	content, err := s.generator.Generate(ctx, BuildPrompt(Brief{
		Request:     req,
		Application: app,
		Profile:     profile,
	}))
	if err != nil {
		logger.WithError(err).Error("Generation failed after credit was reserved")
		if errors.Is(err, ErrGeneration) || errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	// Content is returned even when it cannot be saved.
	if _, err := s.workspace.AttachDocument(ctx, req.UserID, req.ApplicationID, req.Kind.Document(), content); err != nil {
		logger.WithError(err).Error("Failed to save generated document")
	}

	logger.Info("Document generated")
	return &Result{
		Content:          content,
		Kind:             req.Kind,
		CreditsRemaining: balance.Get(pool),
		Unlimited:        balance.Unlimited(),
	}, nil
}
