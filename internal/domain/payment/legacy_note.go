package payment

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	idTagPattern       = regexp.MustCompile(`\[id:([^\]]+)\]`)
	installmentPattern = regexp.MustCompile(`(?i)parcela\s+(\d+)\s*/\s*(\d+)`)
	spacePattern       = regexp.MustCompile(`\s{2,}`)
)

// ParseLegacyNote reads the metadata the transaction log packs into its free
// text note: a bracketed "[id:XYZ]" tag and a "Parcela N/M" marker.
// The returned note has the id tag removed.
func ParseLegacyNote(note string) (externalID string, installment *Installment, cleaned string) {
	if m := idTagPattern.FindStringSubmatch(note); m != nil {
		externalID = strings.TrimSpace(m[1])
	}

	if m := installmentPattern.FindStringSubmatch(note); m != nil {
		index, errIndex := strconv.Atoi(m[1])
		count, errCount := strconv.Atoi(m[2])
		if errIndex == nil && errCount == nil && count > 0 {
			installment = &Installment{Index: index, Count: count}
		}
	}

	cleaned = idTagPattern.ReplaceAllString(note, "")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	return externalID, installment, cleaned
}
