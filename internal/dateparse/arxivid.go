package dateparse

import (
	"cmp"
	"strconv"
	"strings"
)

// StructuredID is the sortable decomposition of a "YYMM.sequence" identifier.
// Malformed identifiers decompose to the zero value and sort as oldest.
type StructuredID struct {
	Year     int
	Month    int
	Sequence int
}

// ParseStructuredID splits an arXiv style identifier such as "2403.01234v2"
// into year 2024, month 3 and sequence 1234.
func ParseStructuredID(id string) StructuredID {
	yearMonth, rest, ok := strings.Cut(id, ".")
	if !ok || len(yearMonth) != 4 {
		return StructuredID{}
	}

	year, err := strconv.Atoi("20" + yearMonth[:2])
	if err != nil {
		return StructuredID{}
	}
	month, err := strconv.Atoi(yearMonth[2:])
	if err != nil {
		return StructuredID{}
	}

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	seq := 0
	if end > 0 {
		seq, err = strconv.Atoi(rest[:end])
		if err != nil {
			return StructuredID{}
		}
	}

	return StructuredID{Year: year, Month: month, Sequence: seq}
}

// Compare orders identifiers by year, month and sequence.
func (s StructuredID) Compare(other StructuredID) int {
	if c := cmp.Compare(s.Year, other.Year); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Month, other.Month); c != 0 {
		return c
	}
	return cmp.Compare(s.Sequence, other.Sequence)
}
