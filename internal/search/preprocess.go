package search

import (
	"bufio"
	"regexp"
	"strings"
)

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

// Paragraphs splits markdown on blank lines and drops empty chunks.
func Paragraphs(md string) []string {
	chunks := paraSplitRE.Split(md, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// FlattenMarkdown rewrites markdown produced from a fetched page into plain
// facts: every table row becomes one line of its non-empty cells, separator
// rows are dropped, and each remaining line becomes its own paragraph.
//
// Notes:
//   - Avoids emitting a leading blank line.
//   - The result ends with exactly one newline, or is empty.
func FlattenMarkdown(md string) string {
	var b strings.Builder
	b.Grow(len(md))

	writeFact := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	sc := bufio.NewScanner(strings.NewReader(md))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		// table row: "| ... |"
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			cols := strings.Split(strings.Trim(line, "|"), "|")

			allSep := true
			cleaned := make([]string, 0, len(cols))
			for _, c := range cols {
				cell := strings.TrimSpace(c)
				if cell != "" {
					cleaned = append(cleaned, cell)
				}
				tmp := strings.ReplaceAll(cell, ":", "")
				tmp = strings.ReplaceAll(tmp, "-", "")
				if strings.TrimSpace(tmp) != "" {
					allSep = false
				}
			}
			if allSep || len(cleaned) == 0 {
				continue
			}
			writeFact(strings.Join(cleaned, " "))
			continue
		}

		writeFact(line)
	}
	// A line longer than the scanner buffer ends the scan; what was read so
	// far is still useful context.

	if b.Len() == 0 {
		return ""
	}
	b.WriteByte('\n')
	return b.String()
}

// Truncate cuts s to at most n runes, preferring the last paragraph or
// sentence boundary inside the limit.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, "\n\n"); i > n/2 {
		return strings.TrimSpace(cut[:i])
	}
	if i := strings.LastIndex(cut, ". "); i > n/2 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut)
}
