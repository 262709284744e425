package history

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// DomainCount is a domain with its visit frequency
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Stats summarizes a history batch without any provider involvement
type Stats struct {
	TotalURLs  int           `json:"totalUrls"`
	TopDomains []DomainCount `json:"topDomains"`
	DateStart  time.Time     `json:"-"`
	DateEnd    time.Time     `json:"-"`
}

// topDomainLimit bounds the reported domain list
const topDomainLimit = 10

// ComputeStats calculates totals, the top-10 domain frequencies, and the
// covered date range. An empty input yields zero totals and an empty list.
func ComputeStats(items []Item) Stats {
	stats := Stats{TotalURLs: len(items), TopDomains: []DomainCount{}}

	counts := make(map[string]int)
	for _, it := range items {
		if d := domainOf(it.URL); d != "" {
			counts[d]++
		}
		if it.HasTimestamp() {
			if stats.DateStart.IsZero() || it.LastVisit.Before(stats.DateStart) {
				stats.DateStart = it.LastVisit
			}
			if it.LastVisit.After(stats.DateEnd) {
				stats.DateEnd = it.LastVisit
			}
		}
	}

	for d, c := range counts {
		stats.TopDomains = append(stats.TopDomains, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(stats.TopDomains, func(i, j int) bool {
		if stats.TopDomains[i].Count != stats.TopDomains[j].Count {
			return stats.TopDomains[i].Count > stats.TopDomains[j].Count
		}
		return stats.TopDomains[i].Domain < stats.TopDomains[j].Domain
	})
	if len(stats.TopDomains) > topDomainLimit {
		stats.TopDomains = stats.TopDomains[:topDomainLimit]
	}

	return stats
}

// domainOf extracts the host from a URL, stripping a www. prefix
func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
