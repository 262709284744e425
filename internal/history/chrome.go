package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/chronolens/chronolens/internal/logging"
)

// webkitEpochOffsetMicros is the microsecond offset between the WebKit epoch
// (1601-01-01) and the Unix epoch (1970-01-01). Chrome stores
// urls.last_visit_time as microseconds since the WebKit epoch.
const webkitEpochOffsetMicros = 11644473600000000

// LoadChrome reads browsing history from a copy of a Chrome/Chromium History
// database. The live file is locked while the browser runs, so callers should
// point at a copy. Since bounds the import window; zero means everything.
func LoadChrome(path string, since time.Time) ([]Item, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to read history database: %w", err)
	}

	query := `SELECT id, url, title, last_visit_time, visit_count
	          FROM urls WHERE last_visit_time > ? ORDER BY last_visit_time ASC`

	rows, err := db.Query(query, toWebkitMicros(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query urls table: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			id         int64
			rawURL     sql.NullString
			title      sql.NullString
			lastVisit  int64
			visitCount sql.NullInt64
		)
		if err := rows.Scan(&id, &rawURL, &title, &lastVisit, &visitCount); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		items = append(items, Item{
			ID:         fmt.Sprintf("%d", id),
			URL:        rawURL.String,
			Title:      title.String,
			LastVisit:  fromWebkitMicros(lastVisit),
			VisitCount: int(visitCount.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	logging.Infof("[History] Loaded %d items from %s", len(items), path)
	return items, nil
}

// toWebkitMicros converts a time.Time to Chrome's last_visit_time encoding
func toWebkitMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro() + webkitEpochOffsetMicros
}

// fromWebkitMicros converts Chrome's last_visit_time to a time.Time.
// Zero stays the zero time (item has no recorded visit).
func fromWebkitMicros(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(v - webkitEpochOffsetMicros)
}
