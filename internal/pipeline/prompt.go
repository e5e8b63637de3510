package pipeline

import (
	"strings"

	"github.com/Aman-CERP/pagegenie/internal/store"
)

// DefaultSystemContext frames the model when a request carries no
// system context of its own.
const DefaultSystemContext = "You are an expert frontend developer familiar with the latest frontend JS frameworks " +
	"and tasked as a contractor to create SPAs with enterprise-grade professional designs. " +
	"Make modern-looking pages with tasteful graphics, subtle animations, and modals where appropriate. " +
	"Here is your task from the client:"

const editorGuidance = "You are WebPageGenie, an assistant that edits or creates single-file HTML5/CSS3/JS webpages. " +
	"Prefer small, targeted edits to the existing page when possible. " +
	"Preserve existing structure, styles, and links. " +
	"Only replace or add the minimal necessary sections. " +
	"If a full page is necessary, ensure it remains compatible with existing assets."

const editInstructions = "Instructions:\n" +
	"- Make minimal edits to satisfy the task.\n" +
	"- Keep existing classes/IDs and asset references (images, CSS, JS) intact when possible.\n" +
	"- If you must add CSS/JS, inline small bits; otherwise reference relative files under ./ .\n" +
	"- Return a complete, valid HTML document."

// DefaultContextBudget caps the retrieved context in runes.
const DefaultContextBudget = 12000

// Prompt is the pair of messages sent to the generator.
type Prompt struct {
	System string
	User   string
	// Used is how many chunks fit in the budget.
	Used int
}

// BuildPrompt assembles the system and user messages. Chunks are taken in
// order until the next one would exceed budget runes; the first chunk is
// truncated rather than dropped so a page is never edited blind.
func BuildPrompt(req Request, chunks []store.Chunk, budget int) Prompt {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	system := strings.TrimSpace(req.SystemContext)
	if system == "" {
		system = DefaultSystemContext
	}
	system += "\n\n" + editorGuidance

	pageContext, used := joinContext(chunks, budget)
	question := strings.TrimSpace(req.Message)

	var user strings.Builder
	if req.PageSlug == "" {
		user.WriteString("Task: " + question + "\n\nContext:\n" + pageContext)
		return Prompt{System: system, User: user.String(), Used: used}
	}

	user.WriteString("Task: " + question + "\n\n")
	user.WriteString("Current page content (may be partial):\n" + pageContext + "\n\n")
	if sel := strings.TrimSpace(req.SelectedHTML); sel != "" {
		user.WriteString("Selected element (focus your edits here):\n" + sel + "\n\n")
		if len(req.SelectedPath) > 0 {
			user.WriteString("Selected element path: " + strings.Join(req.SelectedPath, " > ") + "\n\n")
		}
	}
	user.WriteString(editInstructions)
	return Prompt{System: system, User: user.String(), Used: used}
}

func joinContext(chunks []store.Chunk, budget int) (string, int) {
	const sep = "\n\n"
	var (
		b     strings.Builder
		spent int
		used  int
	)
	for _, c := range chunks {
		n := len([]rune(c.Content))
		if used > 0 {
			n += len(sep)
		}
		if spent+n > budget {
			if used == 0 {
				b.WriteString(string([]rune(c.Content)[:budget]))
				used = 1
			}
			break
		}
		if used > 0 {
			b.WriteString(sep)
		}
		b.WriteString(c.Content)
		spent += n
		used++
	}
	return b.String(), used
}
