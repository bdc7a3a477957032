package biz

import (
	"fmt"
	"strings"
)

// Control tokens the model may emit. Detection is by substring, and the
// precedence when several appear is skip, then close, then pass.
const (
	// TokenSkip means stay silent: no reply is dispatched at all.
	TokenSkip = "SKIP"
	// TokenClose means the conversation is finished and should be closed.
	TokenClose = "CLOSE"
	// TokenPass means the model cannot answer and a human should take over.
	TokenPass = "PASS"
)

// authorLabels maps platform author types to the transcript labels the model
// sees.
var authorLabels = map[string]string{
	"user":  "User",
	"lead":  "Visitor",
	"admin": "Rep",
	"bot":   "Bot",
}

// unknownAnswerMessage is sent when the model passes without any text and
// the conversation is already assigned to the bot.
const unknownAnswerMessage = "Sorry, I don't know how to answer that. " +
	"You can try rephrasing your question. Otherwise, I will leave this question for a human to answer."

// fallbackMessage is the degraded reply after completion attempts are
// exhausted.
const fallbackMessage = "Sorry, there was an error generating a response."

// unclearSentinel is emitted by the condensing prompt when no clear question
// can be distilled from the transcript.
const unclearSentinel = "UNCLEAR"

// closeNote is the internal note posted instead of closing in test mode.
const closeNote = "CLOSE CONVERSATION"

func systemPrompt(company string) string {
	return fmt.Sprintf("You are a friendly and efficient %s representative. "+
		"Your goal is to link the user to a relevant help article using the sections provided. "+
		"As much as possible, use one of the sections (exactly as they appear - with HTML, including images, "+
		"'Excerpt from...' quotation and link) in your answer (but not if none of the sections apply). "+
		"If the answer is not explicitly written in the article sections and/or you need a human rep to take over reply '%s'. "+
		"If the question has been answered and the conversation is finished say '%s'. "+
		"If no response is called for at all say '%s'. "+
		"If the user only said hi or stated they have a question, prompt them to state their question. "+
		"Write only one rep response in HTML.",
		company, TokenPass, TokenClose, TokenSkip)
}

func contextPrompt(sections string) string {
	return "Help article sections:\n" + sections
}

// condensePrompt distills a transcript into the single question currently
// being asked, for better retrieval.
func condensePrompt() string {
	return "You are part of a customer service team. Distill the given customer service chat " +
		"to just the question being currently asked, so that your colleagues have an easier time answering it. " +
		"If there is no clear question reply '" + unclearSentinel + "'."
}

// disclaimerInner is the plain notice text; the platform sometimes rewrites
// the surrounding HTML, so stripping matches both forms.
func disclaimerInner(adminName string) string {
	return fmt.Sprintf("NOTE: %s is our experimental AI chatbot. It may not always provide a correct answer.", adminName)
}

func disclaimer(adminName string) string {
	return fmt.Sprintf("\n<hr><p><small><em>%s</em></small></p>", disclaimerInner(adminName))
}

// truncationMarker is inserted in place of conversation parts dropped by the
// history cap.
func truncationMarker(dropped int) string {
	return fmt.Sprintf("...[messages truncated: %d]...", dropped)
}

// contextBudget returns the character budget shared by transcript and
// retrieved context. Larger-context models get the larger budget.
func contextBudget(model string) int {
	if strings.Contains(model, "gpt-4") {
		return 20000
	}
	return 10000
}
