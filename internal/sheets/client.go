// Package sheets reads confirmed-sale rows from the tracking spreadsheet
// and counts them per publisher for a report window.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callwatch/internal/model"
	"callwatch/internal/schedule"
)

// DefaultBaseURL is the Sheets values API root.
const DefaultBaseURL = "https://sheets.googleapis.com"

// DefaultSheetName is the tab holding real-time sale rows.
const DefaultSheetName = "Real Time"

// Sale rows live in fixed columns: publisher in Q, date in R, time in S.
const (
	colPublisher = 16
	colDate      = 17
	colTime      = 18
)

const sentinelNotFound = "not found"

// Client fetches the sales tab over the values endpoint with an API key.
type Client struct {
	baseURL       string
	apiKey        string
	spreadsheetID string
	sheetName     string
	http          *http.Client
}

// NewClient builds a client. Empty baseURL and sheetName take the defaults;
// timeout bounds every fetch.
func NewClient(baseURL, apiKey, spreadsheetID, sheetName string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		http:          &http.Client{Timeout: timeout},
	}
}

type valuesResponse struct {
	Values [][]any `json:"values"`
}

// FetchSalesCounts counts sale rows whose reconstructed timestamp falls in
// [start, end), grouped by publisher. Rows with a blank or "Not Found"
// publisher and rows whose date or time cannot be parsed are skipped. An
// unreachable or malformed sheet degrades to an empty map rather than an
// error: the report still goes out, with zero matched sales.
func (c *Client) FetchSalesCounts(ctx context.Context, start, end time.Time) (map[string]int, error) {
	counts := map[string]int{}
	rows, err := c.fetchRows(ctx)
	if err != nil {
		log.Printf("[sheets] sales fetch degraded to empty: %v", err)
		return counts, nil
	}
	for i, row := range rows {
		if i == 0 {
			// Header row.
			continue
		}
		sale, ok := ParseSaleRow(row)
		if !ok {
			continue
		}
		if !sale.OccurredAt.Before(start) && sale.OccurredAt.Before(end) {
			counts[sale.PublisherName]++
		}
	}
	return counts, nil
}

func (c *Client) fetchRows(ctx context.Context) ([][]any, error) {
	rangeRef := url.PathEscape(fmt.Sprintf("%s!A:S", c.sheetName))
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		c.baseURL, c.spreadsheetID, rangeRef, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build values request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("values request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("values request: status %d", resp.StatusCode)
	}
	var decoded valuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode values response: %w", err)
	}
	return decoded.Values, nil
}

// ParseSaleRow reconstructs one sale event from a spreadsheet row. The date
// column holds M/D/YYYY, the time column a 12-hour clock, both in the
// reporting timezone. Any missing or unparseable field rejects the row.
func ParseSaleRow(row []any) (model.SalesEvent, bool) {
	publisher := strings.TrimSpace(cell(row, colPublisher))
	if publisher == "" || strings.EqualFold(publisher, sentinelNotFound) {
		return model.SalesEvent{}, false
	}
	dateStr := strings.TrimSpace(cell(row, colDate))
	timeStr := strings.TrimSpace(cell(row, colTime))
	if dateStr == "" || timeStr == "" {
		return model.SalesEvent{}, false
	}
	occurred, err := parseLocalTimestamp(dateStr, timeStr)
	if err != nil {
		return model.SalesEvent{}, false
	}
	return model.SalesEvent{PublisherName: publisher, OccurredAt: occurred}, true
}

var timeLayouts = []string{"3:04:05 PM", "3:04 PM"}

func parseLocalTimestamp(dateStr, timeStr string) (time.Time, error) {
	day, err := time.ParseInLocation("1/2/2006", dateStr, schedule.ReportingZone)
	if err != nil {
		return time.Time{}, err
	}
	normalized := strings.ToUpper(strings.Join(strings.Fields(timeStr), " "))
	for _, layout := range timeLayouts {
		clock, err := time.Parse(layout, normalized)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), 0, schedule.ReportingZone), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", timeStr)
}

func cell(row []any, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
