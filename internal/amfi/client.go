// Package amfi fetches month-end scheme data from the AMFI fund-performance
// polling gateway. Requests are serial and spaced by a fixed polite delay;
// the gateway is a shared public endpoint with no published rate limit.
package amfi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"fundflow/internal/core"
	applog "fundflow/internal/log"
	"fundflow/internal/registry"
)

const fundPerformanceEndpoint = "fundperformance"

// Browser-imitating headers from the gateway's own dashboard client. The
// endpoint rejects requests without an Origin/Referer pair.
var requestHeaders = map[string]string{
	"Accept":         "application/json, text/plain, */*",
	"Content-Type":   "application/json",
	"Origin":         "https://www.amfiindia.com",
	"Referer":        "https://www.amfiindia.com/polling/amfi/",
	"User-Agent":     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"sec-fetch-dest": "empty",
	"sec-fetch-mode": "cors",
	"sec-fetch-site": "same-origin",
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	FundHouseID  int
	RequestDelay time.Duration
	Timeout      time.Duration
	Registry     *registry.Registry
}

type Client struct {
	baseURL     string
	fundHouseID int
	delay       time.Duration
	reg         *registry.Registry
	httpClient  *http.Client
	logger      *applog.Logger
}

// New builds a client with a pooled transport sized for the serial,
// single-host traffic pattern of the pipeline.
func New(opts Options) *Client {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/") + "/",
		fundHouseID: opts.FundHouseID,
		delay:       opts.RequestDelay,
		reg:         reg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: applog.ForComponent(applog.ComponentFetcher),
	}
}

// FetchAllForDate fetches every scheme for the given trading day, iterating
// the registry's (category, sub-category) pairs serially. Sub-category
// failures are logged and skipped: the gateway regularly has gaps, and the
// pipeline decides whether an empty overall result is fatal.
func (c *Client) FetchAllForDate(ctx context.Context, day time.Time) ([]core.Snapshot, error) {
	reportDate := core.ReportDate(day)
	monthEnd := core.MonthEndOf(day)

	fundHouse := ""
	if c.fundHouseID != registry.IndustryFundHouseID {
		if name, ok := c.reg.FundHouseName(c.fundHouseID); ok {
			fundHouse = c.reg.ShortName(name)
		}
	}

	var all []core.Snapshot
	first := true
	for _, cat := range c.reg.Categories {
		for _, sub := range cat.SubCategories {
			if !first {
				if err := sleepCtx(ctx, c.delay); err != nil {
					return nil, err
				}
			}
			first = false

			c.logger.DebugContext(ctx, "Fetching sub-category",
				applog.FieldCategory, cat.Name,
				applog.FieldSubCategory, sub.Name,
				applog.FieldReportDate, reportDate)

			records, err := c.fetchSubCategory(ctx, reportDate, cat.ID, sub.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.WarnContext(ctx, "Sub-category fetch failed",
					applog.FieldCategory, cat.Name,
					applog.FieldSubCategory, sub.Name,
					applog.FieldReportDate, reportDate,
					applog.FieldError, err)
				continue
			}

			for _, rec := range records {
				snap := core.Snapshot{
					SchemeName:  strings.TrimSpace(rec.SchemeName),
					Category:    core.Category(cat.Name),
					SubCategory: sub.Name,
					MonthEnd:    monthEnd,
					NAVRegular:  rec.NAVRegular,
					NAVDirect:   rec.NAVDirect,
					AUMCr:       rec.DailyAUM,
				}
				if snap.Validate() != nil {
					// Rows without a name, NAV or AUM cannot enter the
					// flow computation.
					continue
				}
				if fundHouse != "" {
					snap.FundHouse = fundHouse
				} else {
					snap.FundHouse = c.reg.ExtractFundHouse(snap.SchemeName)
				}
				all = append(all, snap)
			}
		}
	}

	c.logger.InfoContext(ctx, "Fetched schemes for report date",
		applog.FieldReportDate, reportDate,
		applog.FieldSchemes, len(all))
	return all, nil
}

func (c *Client) fetchSubCategory(ctx context.Context, reportDate string, categoryID, subCategoryID int) ([]schemeRecord, error) {
	payload := fundPerformanceRequest{
		MaturityType: c.reg.MaturityType,
		Category:     categoryID,
		SubCategory:  subCategoryID,
		FundHouseID:  c.fundHouseID,
		ReportDate:   reportDate,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+fundPerformanceEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", fundPerformanceEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post %s: unexpected status %d", fundPerformanceEndpoint, resp.StatusCode)
	}

	var parsed fundPerformanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if parsed.ValidationMsg != "SUCCESS" {
		// In-band miss: the gateway has no data for this date/sub-category.
		c.logger.WarnContext(ctx, "Gateway returned non-success",
			"validation_msg", parsed.ValidationMsg,
			"error_msgs", parsed.ErrorMsgs,
			applog.FieldReportDate, reportDate)
		return nil, nil
	}

	return parsed.Data, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
