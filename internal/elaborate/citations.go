package elaborate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/redact"
)

const citedSystem = `You write grounded explanations for study notes.
Produce 2-4 paragraphs of explanatory markdown expanding on the note.
Cite at least 2-3 of the numbered sources inline using bracket notation
like [1] or [2]. Only cite the sources provided. Do not add a reference
list; the brackets are enough.`

const uncitedSystem = `You write explanations for study notes.
Produce 2-4 paragraphs of explanatory markdown expanding on the note.
No sources are available, so do not fabricate citations or URLs.`

var citationMarkerRe = regexp.MustCompile(`\s?\[(\d+)\]`)

// Generator produces elaboration markdown with inline numbered citations.
type Generator struct {
	llm ModelClient
}

// NewGenerator creates a citation generator over the given model client.
func NewGenerator(llm ModelClient) *Generator {
	return &Generator{llm: llm}
}

// Elaborate generates explanatory markdown for the note body. Sources
// are numbered [1]..[k] in the order supplied; with no sources the
// citation requirement is dropped. Citation markers pointing outside
// the supplied source list are stripped from the output, since the
// numbering is only enforced by prompt instruction.
func (g *Generator) Elaborate(ctx context.Context, noteBody string, sources []models.SearchResult) (string, error) {
	if strings.TrimSpace(noteBody) == "" {
		return "", apperr.Validation("note content is required to elaborate")
	}

	var (
		system string
		sb     strings.Builder
	)
	fmt.Fprintf(&sb, "Note:\n%s\n", redact.Scrub(noteBody))
	if len(sources) == 0 {
		system = uncitedSystem
	} else {
		system = citedSystem
		sb.WriteString("\nSources:\n")
		for i, src := range sources {
			fmt.Fprintf(&sb, "[%d] %s — %s\n    %s\n", i+1, src.Title, src.URL, redact.Scrub(src.Snippet))
		}
	}

	text, err := g.llm.Complete(ctx, system, sb.String())
	if err != nil {
		return "", err
	}
	return stripDanglingCitations(text, len(sources)), nil
}

// stripDanglingCitations removes [n] markers with n outside [1, k].
func stripDanglingCitations(text string, k int) string {
	return citationMarkerRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := citationMarkerRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 1 || n > k {
			return ""
		}
		return m
	})
}
