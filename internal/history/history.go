// Package history holds the browsing-history input model and statistics.
// Items are immutable inputs; nothing in the pipeline mutates them.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Item is a single browsing-history entry
type Item struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	LastVisit  time.Time `json:"-"`
	VisitCount int       `json:"visitCount,omitempty"`
}

// HasTimestamp reports whether the item carries a visit timestamp
func (it Item) HasTimestamp() bool {
	return !it.LastVisit.IsZero()
}

// jsonItem is the export wire format: lastVisitTime in epoch milliseconds
type jsonItem struct {
	ID            string `json:"id"`
	URL           string `json:"url,omitempty"`
	Title         string `json:"title,omitempty"`
	LastVisitTime int64  `json:"lastVisitTime,omitempty"`
	VisitCount    int    `json:"visitCount,omitempty"`
}

// MarshalJSON renders the item with an epoch-millisecond timestamp
func (it Item) MarshalJSON() ([]byte, error) {
	j := jsonItem{
		ID:         it.ID,
		URL:        it.URL,
		Title:      it.Title,
		VisitCount: it.VisitCount,
	}
	if !it.LastVisit.IsZero() {
		j.LastVisitTime = it.LastVisit.UnixMilli()
	}
	return json.Marshal(j)
}

// UnmarshalJSON parses the export wire format
func (it *Item) UnmarshalJSON(data []byte) error {
	var j jsonItem
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	it.ID = j.ID
	it.URL = j.URL
	it.Title = j.Title
	it.VisitCount = j.VisitCount
	if j.LastVisitTime > 0 {
		it.LastVisit = time.UnixMilli(j.LastVisitTime)
	} else {
		it.LastVisit = time.Time{}
	}
	return nil
}

// LoadJSON reads a history export file (a JSON array of items)
func LoadJSON(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history export: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse history export: %w", err)
	}
	return items, nil
}

// SortByVisitTime returns a copy of items sorted ascending by timestamp.
// Items without a timestamp sort first in stable input order.
func SortByVisitTime(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastVisit.Before(sorted[j].LastVisit)
	})
	return sorted
}
