package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/applications"
)

func TestChatGenerator_Generate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Madame, Monsieur,"}}]}`))
	}))
	defer server.Close()

	g := NewChatGenerator(ChatConfig{URL: server.URL, APIKey: "sk-test"})
	out, err := g.Generate(context.Background(), Prompt{System: "sys", User: "usr", SessionID: "joboost_u1_app1"})
	require.NoError(t, err)
	assert.Equal(t, "Madame, Monsieur,", out)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "joboost_u1_app1", got.User)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "usr"}, got.Messages[1])
}

func TestChatGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`, "rate limited"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "empty completion"},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, "empty completion"},
		{"garbage", http.StatusBadGateway, `<html>`, "unreadable response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := NewChatGenerator(ChatConfig{URL: server.URL, APIKey: "sk-test"})
			_, err := g.Generate(context.Background(), Prompt{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrGeneration)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestChatGenerator_NotConfigured(t *testing.T) {
	g := NewChatGenerator(ChatConfig{URL: "http://127.0.0.1:0"})
	assert.False(t, g.Configured())
	_, err := g.Generate(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildPrompt(t *testing.T) {
	b := Brief{
		Request: Request{UserID: "u1", ApplicationID: "app1", Kind: KindCoverLetter},
		Application: &applications.Application{
			ID:          "app1",
			JobTitle:    "Développeur Go",
			CompanyName: "Acme",
		},
		Profile: &applications.Profile{
			Title:  "Backend engineer",
			Skills: []string{"Go", "PostgreSQL"},
			Experiences: []applications.Experience{
				{Title: "Dev", Company: "Initech", StartDate: "2020", Description: "APIs"},
				{Title: "Lead", Company: "Globex", StartDate: "2023", EndDate: "2024", Current: true, Description: "Team"},
			},
			Education: []applications.Education{
				{Degree: "Master", Institution: "EPITA", StartDate: "2015", EndDate: "2020"},
			},
		},
	}

	p := BuildPrompt(b)
	assert.Equal(t, "joboost_u1_app1", p.SessionID)
	assert.Equal(t, coverLetterSystem, p.System)
	assert.Contains(t, p.User, "POSTE: Développeur Go")
	assert.Contains(t, p.User, "Nom: Le candidat")
	assert.Contains(t, p.User, "Non spécifiée")
	assert.Contains(t, p.User, "- Dev chez Initech (2020 - Présent): APIs")
	assert.Contains(t, p.User, "- Lead chez Globex (2023 - Présent): Team")
	assert.Contains(t, p.User, "- Master à EPITA (2015 - 2020)")
	assert.Contains(t, p.User, "COMPÉTENCES: Go, PostgreSQL")

	b.Kind = KindCV
	b.Name = "Jane Doe"
	b.Email = "jane@example.com"
	p = BuildPrompt(b)
	assert.Equal(t, cvSystem, p.System)
	assert.True(t, strings.HasPrefix(p.User, "Crée un CV optimisé"))
	assert.Contains(t, p.User, "POSTE VISÉ: Développeur Go chez Acme")
	assert.Contains(t, p.User, "Nom: Jane Doe")
	assert.Contains(t, p.User, "Email: jane@example.com")
}
