package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
)

// PromptBuilder assembles the system prompt of the constitution assistant.
type PromptBuilder struct {
	base  string
	rules []string
}

// NewPromptBuilder returns the default French assistant prompt.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		base: "Tu es un assistant spécialisé dans l'analyse de la constitution de la République de Guinée. " +
			"Tu réponds en français, de manière claire et précise, en citant les articles pertinents.",
		rules: []string{
			"Appuie chaque réponse sur le texte constitutionnel et indique le numéro de l'article lorsque c'est possible",
			"Si la constitution ne traite pas la question, dis-le explicitement plutôt que d'inventer",
			"Reste neutre et factuel sur les sujets politiques",
			"Propose une reformulation simple lorsque l'article cité est technique",
		},
	}
}

// SystemPrompt renders the prompt, scoped to doc when one is selected.
func (p *PromptBuilder) SystemPrompt(doc *document.Document) string {
	var builder strings.Builder
	builder.WriteString(p.base)
	builder.WriteString("\n\nRègles :\n- ")
	builder.WriteString(strings.Join(p.rules, "\n- "))

	if doc != nil {
		builder.WriteString("\n\nDocument consulté : ")
		builder.WriteString(doc.Title)
		if doc.Year != nil {
			builder.WriteString(fmt.Sprintf(" (%d)", *doc.Year))
		}
		if doc.Status == document.StatusArchived {
			builder.WriteString("\nCe texte n'est plus en vigueur ; précise-le si la réponse en dépend.")
		}
	}
	return builder.String()
}
