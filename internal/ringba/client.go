// Package ringba fetches per-publisher call metrics from the provider's
// insights API.
package ringba

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callwatch/internal/report"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.ringba.com/v2"

// UnknownPublisher labels provider records that carry no publisher
// attribution at all. Records whose name is the literal MISSING sentinel are
// excluded instead.
const UnknownPublisher = "Unknown"

const sentinelMissing = "missing"

// The provider formats timespans and percentages in the reporting timezone.
const formatTimeZone = "America/New_York"

// Client calls the insights endpoint with a bounded request timeout.
type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
}

// NewClient builds a client. baseURL may be empty to use the production
// endpoint; timeout must be positive so a stuck provider call cannot stall
// a report cycle.
func NewClient(baseURL, token, accountID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		accountID: accountID,
		http:      &http.Client{Timeout: timeout},
	}
}

type column struct {
	Column            string  `json:"column"`
	DisplayName       string  `json:"displayName,omitempty"`
	AggregateFunction *string `json:"aggregateFunction"`
}

type orderColumn struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

type insightsRequest struct {
	ReportStart        string        `json:"reportStart"`
	ReportEnd          string        `json:"reportEnd"`
	GroupByColumns     []column      `json:"groupByColumns"`
	ValueColumns       []column      `json:"valueColumns"`
	OrderByColumns     []orderColumn `json:"orderByColumns"`
	FormatTimespans    bool          `json:"formatTimespans"`
	FormatPercentages  bool          `json:"formatPercentages"`
	GenerateRollups    bool          `json:"generateRollups"`
	MaxResultsPerGroup int           `json:"maxResultsPerGroup"`
	Filters            []any         `json:"filters"`
	FormatTimeZone     string        `json:"formatTimeZone"`
}

type insightsResponse struct {
	Report struct {
		Records []map[string]any `json:"records"`
	} `json:"report"`
}

var valueColumns = []string{
	"callCount", "liveCallCount", "completedCalls", "endedCalls",
	"connectedCallCount", "payoutCount", "convertedCalls",
	"nonConnectedCallCount", "duplicateCalls", "blockedCalls",
	"incompleteCalls", "conversionAmount", "payoutAmount", "profitGross",
	"profitMarginGross", "convertedPercent", "callLengthInSeconds",
	"avgHandleTime", "totalCost",
}

// FetchPublisherMetrics returns one row per publisher for the half-open
// window [start, end). Unparseable numeric fields coerce to zero; records
// named with the MISSING sentinel are dropped and blank names are kept
// under the Unknown label.
func (c *Client) FetchPublisherMetrics(ctx context.Context, start, end time.Time) ([]report.PublisherMetrics, error) {
	reqBody := insightsRequest{
		ReportStart:        start.UTC().Format("2006-01-02T15:04:05Z"),
		ReportEnd:          end.UTC().Format("2006-01-02T15:04:05Z"),
		GroupByColumns:     []column{{Column: "publisherName", DisplayName: "Publisher"}},
		OrderByColumns:     []orderColumn{{Column: "callCount", Direction: "desc"}},
		FormatTimespans:    true,
		FormatPercentages:  true,
		GenerateRollups:    true,
		MaxResultsPerGroup: 1000,
		Filters:            []any{},
		FormatTimeZone:     formatTimeZone,
	}
	for _, col := range valueColumns {
		reqBody.ValueColumns = append(reqBody.ValueColumns, column{Column: col})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal insights request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/insights", c.baseURL, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build insights request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("insights request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("insights request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded insightsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode insights response: %w", err)
	}
	return parseRecords(decoded.Report.Records), nil
}

func parseRecords(records []map[string]any) []report.PublisherMetrics {
	out := make([]report.PublisherMetrics, 0, len(records))
	for _, row := range records {
		name := strings.TrimSpace(coerceString(row["publisherName"]))
		if strings.EqualFold(name, sentinelMissing) {
			continue
		}
		if name == "" {
			name = UnknownPublisher
		}
		out = append(out, report.PublisherMetrics{
			PublisherName:     name,
			Incoming:          coerceInt(row["callCount"]),
			Live:              coerceInt(row["liveCallCount"]),
			Completed:         coerceInt(row["completedCalls"]),
			Ended:             coerceInt(row["endedCalls"]),
			Connected:         coerceInt(row["connectedCallCount"]),
			Paid:              coerceInt(row["payoutCount"]),
			Converted:         coerceInt(row["convertedCalls"]),
			NoConnect:         coerceInt(row["nonConnectedCallCount"]),
			Duplicate:         coerceInt(row["duplicateCalls"]),
			Blocked:           coerceInt(row["blockedCalls"]),
			IVRHangup:         coerceInt(row["incompleteCalls"]),
			Revenue:           coerceFloat(row["conversionAmount"]),
			Payout:            coerceFloat(row["payoutAmount"]),
			Profit:            coerceFloat(row["profitGross"]),
			Margin:            coerceFloat(row["profitMarginGross"]),
			ConversionPercent: coerceFloat(row["convertedPercent"]),
			TCLSeconds:        coerceInt(row["callLengthInSeconds"]),
			ACLSeconds:        coerceInt(row["avgHandleTime"]),
			TotalCost:         coerceFloat(row["totalCost"]),
		})
	}
	return out
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// coerceFloat is total: percent suffixes are stripped and anything
// unparseable becomes zero.
func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		clean := strings.TrimSpace(strings.ReplaceAll(t, "%", ""))
		if clean == "" {
			return 0
		}
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func coerceInt(v any) int {
	return int(coerceFloat(v))
}
