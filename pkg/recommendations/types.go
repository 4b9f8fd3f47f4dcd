package recommendations

import (
	"context"
	"strings"

	"github.com/platinummonkey/joboost/pkg/applications"
)

// Listing is a job offer as returned by a job board.
type Listing struct {
	Title       string
	Company     string
	Location    string
	URL         string
	Description string
	Salary      string
	Type        string
	Source      string
}

// Offer is a listing scored against the user's skills.
type Offer struct {
	Title      string `json:"title"`
	Company    string `json:"company"`
	Location   string `json:"location"`
	URL        string `json:"url"`
	Source     string `json:"source"`
	MatchScore int    `json:"match_score"`
	Salary     string `json:"salary"`
	Type       string `json:"type"`
}

// Result is the recommendation list. Message is set when no profile exists.
type Result struct {
	Offers  []Offer `json:"offers"`
	Message string  `json:"message,omitempty"`
}

// Query is what a job board is searched for.
type Query struct {
	Keywords string
	Location string
}

// Source searches one job board.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Listing, error)
}

// ProfileReader loads the master profile recommendations are based on.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*applications.Profile, error)
}

// MatchScore is the percentage of skills mentioned in description. With no
// skills or no description it is 50.
func MatchScore(skills []string, description string) int {
	if len(skills) == 0 || description == "" {
		return 50
	}
	text := strings.ToLower(description)
	matches := 0
	for _, skill := range skills {
		if strings.Contains(text, strings.ToLower(skill)) {
			matches++
		}
	}
	return matches * 100 / len(skills)
}
