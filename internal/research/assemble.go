package research

import (
	"fmt"
	"strings"

	"github.com/tbourn/shiporskip-backend/internal/search"
)

// Context budget shares: snippets, enriched content, raw source list.
const (
	shareSnippets = 0.30
	shareEnriched = 0.50
	shareSources  = 0.20
)

// AssembleContext renders the evidence handed to synthesis within budget
// characters. Without enrichment the enriched share goes to snippets.
func AssembleContext(agg Aggregation, enriched []*Enrichment, budget int) string {
	if budget <= 0 {
		budget = 16000
	}
	snipBudget := int(float64(budget) * shareSnippets)
	enrBudget := int(float64(budget) * shareEnriched)
	srcBudget := budget - snipBudget - enrBudget

	hasEnriched := false
	for _, e := range enriched {
		if e != nil {
			hasEnriched = true
			break
		}
	}
	if !hasEnriched {
		snipBudget += enrBudget
		enrBudget = 0
	}

	var b strings.Builder

	b.WriteString("## Search results\n")
	var snip []string
	for _, c := range agg.Candidates {
		snip = append(snip, fmt.Sprintf("- [%s] %s (%s): %s", c.Source, c.Title, c.URL, oneLine(c.Snippet)))
	}
	b.WriteString(fitLines(snip, snipBudget))

	if enrBudget > 0 {
		b.WriteString("\n## Fetched pages\n")
		var live []*Enrichment
		for _, e := range enriched {
			if e != nil {
				live = append(live, e)
			}
		}
		per := enrBudget / len(live)
		for _, e := range live {
			head := fmt.Sprintf("### %s (%s)\n", e.Title, e.URL)
			body := search.Truncate(e.Content, per-len(head))
			if body == "" {
				continue
			}
			b.WriteString(head)
			b.WriteString(body)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("\n## Sources\n")
	var src []string
	for i, r := range agg.RawSources {
		src = append(src, fmt.Sprintf("%d. %s | %s", i+1, r.Title, r.URL))
	}
	b.WriteString(fitLines(src, srcBudget))
	return b.String()
}

// fitLines joins lines until the next one would exceed limit characters.
func fitLines(lines []string, limit int) string {
	var b strings.Builder
	for _, l := range lines {
		if b.Len()+len(l)+1 > limit {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
