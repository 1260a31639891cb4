package biorxiv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DetailsResponse is the body of a details endpoint call.
type DetailsResponse struct {
	Messages   []Message `json:"messages"`
	Collection []Item    `json:"collection"`
}

// Message carries the paging metadata of one details call.
type Message struct {
	Status   string  `json:"status"`
	Interval string  `json:"interval"`
	Cursor   flexInt `json:"cursor"`
	Count    flexInt `json:"count"`
	Total    flexInt `json:"total"`
}

// Item is a single preprint version in the details collection.
type Item struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Authors   string `json:"authors"` // "Last, F.; Last, F."
	Date      string `json:"date"`    // "2024-01-15"
	Version   string `json:"version"`
	Type      string `json:"type"` // "new results", "confirmatory results", ...
	License   string `json:"license"`
	Category  string `json:"category"`
	Abstract  string `json:"abstract"`
	Published string `json:"published"`
	Server    string `json:"server"`
}

// flexInt accepts both JSON numbers and numeric strings. The details
// endpoint reports total as a string and count as a number.
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("flexInt: %w", err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
