package generation

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/joboost/pkg/applications"
)

const coverLetterSystem = `Tu es un expert RH français spécialisé dans la rédaction de lettres de motivation professionnelles et convaincantes.
Tu dois rédiger une lettre de motivation en français, parfaitement structurée, qui:
- Fait le pont entre le parcours du candidat et le poste visé
- Met en avant les expériences et compétences les plus pertinentes
- Est professionnelle mais authentique
- Respecte le format standard français (objet, formules de politesse)
- Fait environ 300-400 mots`

const cvSystem = `Tu es un expert RH français spécialisé dans l'optimisation de CV.
Tu dois créer un CV structuré en texte qui:
- Met en avant les éléments les plus pertinents pour le poste
- Est clair et bien organisé
- Utilise des verbes d'action
- Quantifie les réalisations quand possible`

// Brief is everything a prompt is written from.
type Brief struct {
	Request
	Application *applications.Application
	Profile     *applications.Profile
}

// BuildPrompt assembles the prompt for b.
func BuildPrompt(b Brief) Prompt {
	p := Prompt{SessionID: fmt.Sprintf("joboost_%s_%s", b.UserID, b.ApplicationID)}
	if b.Kind == KindCoverLetter {
		p.System = coverLetterSystem
		p.User = coverLetterPrompt(b)
	} else {
		p.System = cvSystem
		p.User = cvPrompt(b)
	}
	return p
}

func coverLetterPrompt(br Brief) string {
	app, prof := br.Application, br.Profile
	name := br.Name
	if name == "" {
		name = "Le candidat"
	}
	description := app.JobDescription
	if strings.TrimSpace(description) == "" {
		description = "Non spécifiée"
	}

	var b strings.Builder
	b.WriteString("Rédige une lettre de motivation pour le poste suivant:\n\n")
	fmt.Fprintf(&b, "POSTE: %s\nENTREPRISE: %s\nDESCRIPTION DU POSTE:\n%s\n\n", app.JobTitle, app.CompanyName, description)
	b.WriteString("PROFIL DU CANDIDAT:\n")
	fmt.Fprintf(&b, "Nom: %s\nTitre: %s\nRésumé: %s\n\n", name, prof.Title, prof.Summary)
	fmt.Fprintf(&b, "EXPÉRIENCES PROFESSIONNELLES:\n%s\n", formatExperiences(prof.Experiences))
	fmt.Fprintf(&b, "FORMATION:\n%s\n", formatEducation(prof.Education))
	fmt.Fprintf(&b, "COMPÉTENCES: %s\n\n", strings.Join(prof.Skills, ", "))
	b.WriteString("Rédige maintenant une lettre de motivation percutante et personnalisée.")
	return b.String()
}

func cvPrompt(br Brief) string {
	app, prof := br.Application, br.Profile

	var b strings.Builder
	b.WriteString("Crée un CV optimisé pour le poste suivant:\n\n")
	fmt.Fprintf(&b, "POSTE VISÉ: %s chez %s\n\n", app.JobTitle, app.CompanyName)
	b.WriteString("INFORMATIONS DU CANDIDAT:\n")
	fmt.Fprintf(&b, "Nom: %s\nEmail: %s\nTéléphone: %s\nLocalisation: %s\nLinkedIn: %s\n\n",
		br.Name, br.Email, prof.Phone, prof.Location, prof.LinkedInURL)
	fmt.Fprintf(&b, "Titre professionnel: %s\nRésumé: %s\n\n", prof.Title, prof.Summary)
	fmt.Fprintf(&b, "EXPÉRIENCES:\n%s\n", formatExperiences(prof.Experiences))
	fmt.Fprintf(&b, "FORMATION:\n%s\n", formatEducation(prof.Education))
	fmt.Fprintf(&b, "COMPÉTENCES: %s\n\n", strings.Join(prof.Skills, ", "))
	b.WriteString("Génère un CV structuré et optimisé pour cette candidature.")
	return b.String()
}

func formatExperiences(exps []applications.Experience) string {
	var b strings.Builder
	for _, e := range exps {
		end := e.EndDate
		if end == "" || e.Current {
			end = "Présent"
		}
		fmt.Fprintf(&b, "- %s chez %s (%s - %s): %s\n", e.Title, e.Company, e.StartDate, end, e.Description)
	}
	return b.String()
}

func formatEducation(edus []applications.Education) string {
	var b strings.Builder
	for _, e := range edus {
		fmt.Fprintf(&b, "- %s à %s (%s - %s)\n", e.Degree, e.Institution, e.StartDate, e.EndDate)
	}
	return b.String()
}
