package dateparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{name: "day month year", input: "15 March, 2024"},
		{name: "plain date", input: "2024-03-15"},
		{name: "iso without zone", input: "2024-03-15T10:00:00"},
		{name: "iso with Z", input: "2024-03-15T10:00:00Z"},
		{name: "embedded short form", input: "Submitted on 2024-3-15 (v1)"},
		{name: "surrounding whitespace", input: "  2024-03-15 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestParseDate_Unparseable(t *testing.T) {
	for _, input := range []string{"", "yesterday", "March 2024", "2024-13-40"} {
		t.Run(input, func(t *testing.T) {
			_, ok := ParseDate(input)
			assert.False(t, ok)
		})
	}
}

func TestNormalizeISODate(t *testing.T) {
	assert.Equal(t, "2024-02-01", NormalizeISODate("2024-02-01T12:30:00.000Z"))
	assert.Equal(t, "2024-02-01", NormalizeISODate("2024-02-01T12:30:00+02:00"))
	assert.Equal(t, "2024-02-01", NormalizeISODate("2024-02-01"))
	assert.Equal(t, "Feb 2024", NormalizeISODate("Feb 2024"))
	assert.Equal(t, "", NormalizeISODate(""))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", FormatDay(d))

	_, err = ParseDay("31/01/2024")
	assert.Error(t, err)
}

func TestParseStructuredID(t *testing.T) {
	tests := []struct {
		id   string
		want StructuredID
	}{
		{id: "2403.01234", want: StructuredID{Year: 2024, Month: 3, Sequence: 1234}},
		{id: "2403.01234v2", want: StructuredID{Year: 2024, Month: 3, Sequence: 1234}},
		{id: "1912.9", want: StructuredID{Year: 2019, Month: 12, Sequence: 9}},
		{id: "2403.v1", want: StructuredID{Year: 2024, Month: 3}},
		{id: "no-dot", want: StructuredID{}},
		{id: "240.01234", want: StructuredID{}},
		{id: "ab03.01234", want: StructuredID{}},
		{id: "", want: StructuredID{}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStructuredID(tt.id))
		})
	}
}

func TestStructuredID_Compare(t *testing.T) {
	older := ParseStructuredID("2312.99999")
	newer := ParseStructuredID("2401.00001")
	same := ParseStructuredID("2401.00001v3")

	assert.Equal(t, -1, older.Compare(newer))
	assert.Equal(t, 1, newer.Compare(older))
	assert.Equal(t, 0, newer.Compare(same))
	assert.Equal(t, -1, StructuredID{}.Compare(older))
}
