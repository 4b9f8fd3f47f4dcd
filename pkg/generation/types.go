package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/ledger"
)

var (
	// ErrInvalidKind is returned for an unknown generation type.
	ErrInvalidKind = errors.New("invalid generation type")
	// ErrInvalidRequest is returned when a request names no application.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrNotConfigured is returned by generators without an API key.
	ErrNotConfigured = errors.New("generator not configured")
	// ErrGeneration is returned when the generator call fails.
	ErrGeneration = errors.New("generation failed")
	// ErrProfileRequired is returned when the user has no master profile to
	// generate from.
	ErrProfileRequired = errors.New("master profile required")
)

// Kind is the document to generate.
type Kind string

const (
	KindCoverLetter Kind = "cover_letter"
	KindCV          Kind = "cv"
)

// ParseKind validates a generation type. An empty value means KindCV.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCoverLetter, KindCV:
		return k, nil
	case "":
		return KindCV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Pool is the credit pool a generation of this kind is charged to.
func (k Kind) Pool() ledger.Pool {
	if k == KindCoverLetter {
		return ledger.PoolLetter
	}
	return ledger.PoolCV
}

// Document is where generated content of this kind is stored on the application.
func (k Kind) Document() applications.Document {
	if k == KindCoverLetter {
		return applications.DocumentCoverLetter
	}
	return applications.DocumentCV
}

// Request asks for one document for one of the user's applications. Name and
// Email come from the caller's identity; the job and the profile are loaded
// from the workspace.
type Request struct {
	UserID        string
	ApplicationID string
	Kind          Kind
	Name          string
	Email         string
}

// Workspace reads the application and master profile a document is written
// from, and keeps the generated document on the application.
type Workspace interface {
	Get(ctx context.Context, userID, applicationID string) (*applications.Application, error)
	GetProfile(ctx context.Context, userID string) (*applications.Profile, error)
	AttachDocument(ctx context.Context, userID, applicationID string, doc applications.Document, content string) (*applications.Application, error)
}

// Result is a generated document.
type Result struct {
	Content          string `json:"content"`
	Kind             Kind   `json:"type"`
	CreditsRemaining int64  `json:"credits_remaining"`
	Unlimited        bool   `json:"unlimited,omitempty"`
}

// Prompt is the conversation sent to the generator.
type Prompt struct {
	System string
	User   string
	// SessionID groups generations of one user for one application.
	SessionID string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
