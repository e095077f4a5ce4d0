package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/lazypower/attention/internal/interaction"
)

// maxSummaryItems caps the elements listed per section.
const maxSummaryItems = 15

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(buildSummary(c)))
}

// buildSummary renders a context's landmarks and remaining interesting
// elements as markdown, highest interest first.
func buildSummary(c *interaction.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Attention: %s\n", c.ID())
	fmt.Fprintf(&b, "%s history entries, %s user events\n",
		humanize.Comma(int64(c.Len())), humanize.Comma(int64(c.UserEventCount())))

	landmarks := c.Landmarks()
	var rest []interaction.Interest
	for _, st := range c.Interesting() {
		if !st.Landmark {
			rest = append(rest, st)
		}
	}

	writeSection(&b, "Landmarks", landmarks)
	writeSection(&b, "Interesting", rest)
	if len(landmarks) == 0 && len(rest) == 0 {
		b.WriteString("\nNothing interesting yet.\n")
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []interaction.Interest) {
	if len(items) == 0 {
		return
	}
	more := 0
	if len(items) > maxSummaryItems {
		more = len(items) - maxSummaryItems
		items = items[:maxSummaryItems]
	}
	fmt.Fprintf(b, "\n### %s\n", title)
	for _, st := range items {
		kind := st.StructureKind
		if kind == "" {
			kind = "element"
		}
		fmt.Fprintf(b, "- [%s] %s: %s (%d events, last %s)\n",
			kind, st.Handle, humanize.FtoaWithDigits(st.Score, 2), st.Events, humanize.Time(st.LastTouched))
	}
	if more > 0 {
		fmt.Fprintf(b, "- ...and %d more\n", more)
	}
}
