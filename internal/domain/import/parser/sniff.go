package parser

import "strings"

// delimiter candidates, in preference order for ties
var delimiterCandidates = []rune{',', ';', '\t'}

// sniffDelimiter picks the field separator from the header line. European
// bank exports commonly use semicolons or tabs instead of commas; whichever
// candidate occurs most often outside quotes wins, with comma as the default.
func sniffDelimiter(line string) rune {
	counts := make(map[rune]int, len(delimiterCandidates))

	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, candidate := range delimiterCandidates {
			if r == candidate {
				counts[r]++
			}
		}
	}

	best := ','
	bestCount := 0
	for _, candidate := range delimiterCandidates {
		if counts[candidate] > bestCount {
			best = candidate
			bestCount = counts[candidate]
		}
	}
	return best
}

// firstNonBlankLine returns the header line the sniffer inspects.
func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
