package chat

import "time"

// StorageKey is the durable slot holding a serialized transcript. The suffix
// versions the format; nothing migrates between versions.
const StorageKey = "chat-ia-session-v1"

// WelcomeText seeds every new or cleared transcript.
const WelcomeText = "Bonjour 👋 Je suis votre assistant IA spécialisé dans l'analyse de la constitution de la Guinée.\n\n" +
	"Je peux vous aider à :\n" +
	"• Trouver des articles spécifiques\n" +
	"• Expliquer les droits et libertés\n" +
	"• Clarifier le fonctionnement des institutions\n" +
	"• Analyser les principes constitutionnels\n" +
	"• Répondre à vos questions sur la constitution\n\n" +
	"Posez-moi votre question et je vous répondrai en me basant sur la constitution de la Guinée."

// Welcome builds a freshly timestamped welcome message.
func Welcome() Message {
	return NewMessage(RoleAssistant, WelcomeText)
}

// QuickQuestions are the clickable starters offered next to a fresh transcript.
func QuickQuestions() []string {
	return []string{
		"Quelle est la durée du mandat présidentiel ?",
		"Quels sont les droits fondamentaux des citoyens ?",
		"Comment fonctionne le pouvoir exécutif ?",
		"Que dit la constitution sur l'éducation ?",
		"Quels sont les devoirs des citoyens ?",
		"Comment sont organisées les élections ?",
	}
}

// Session binds a profile to its conversation.
type Session struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profileId"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
