package payroll

import (
	"strconv"
	"strings"
)

const fieldDelimiter = ','

// splitLine splits one line on the delimiter. Double quotes toggle an
// in-quotes state in which the delimiter is literal; the quotes themselves
// are dropped. Cells are trimmed.
func splitLine(line string) []string {
	var (
		cells    []string
		cell     strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == fieldDelimiter && !inQuotes:
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(r)
		}
	}
	return append(cells, strings.TrimSpace(cell.String()))
}

// splitLines returns the non-blank lines of text with line endings removed.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// dropLeadingComments removes template instruction lines ("# ...") that
// precede the header row.
func dropLeadingComments(lines []string) []string {
	for len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "#") {
		lines = lines[1:]
	}
	return lines
}

// fitRow pads or truncates cells to width.
func fitRow(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseAmount keeps digits, '-' and '.' and parses what remains, so
// "RWF 1,250,000" reads as 1250000. ok is false when nothing parseable is left.
func parseAmount(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
