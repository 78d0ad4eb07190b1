// Package naver provides a client for the Naver booking GraphQL API, which
// serves branch detail, room listings, and hourly schedules for venues
// discovered on the map surface.
package naver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/roomscout/collector-cli/internal/resilience"
)

const defaultBaseURL = "https://booking.naver.com/graphql"

// Client defines the booking API operations used by the pipeline.
type Client interface {
	// Business fetches branch-level detail for one business ID.
	Business(ctx context.Context, businessID string) (*Business, error)
	// BizItems lists the bookable rooms under a business.
	BizItems(ctx context.Context, businessID string) ([]BizItem, error)
	// Schedule fetches the hourly availability for one room over a window.
	Schedule(ctx context.Context, params ScheduleParams) (*Schedule, error)
}

// Option configures the booking client.
type Option func(*httpClient)

// WithBaseURL sets a custom GraphQL endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit paces requests at r per second with the given burst. The
// booking endpoint throttles aggressively; pacing below its ceiling avoids
// burning retry budget on 429s.
func WithRateLimit(r float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a booking API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const businessQuery = `
query business($businessId: String!) {
    business(input: {businessId: $businessId}) {
        id
        businessId
        name
        businessDisplayName
        coordinates
        placeId
        phone
        standbyDays
    }
}`

const bizItemsQuery = `
query bizItems($input: BizItemsParams) {
  bizItems(input: $input) {
    bizItemId
    name
    desc
    minMaxPrice {
      minPrice
      maxNormalPrice
    }
    bizItemResources {
      resourceUrl
    }
    bookingTimeUnitCode
    minBookingTime
  }
}`

const scheduleQuery = `
query schedule($scheduleParams: ScheduleParams) {
  schedule(input: $scheduleParams) {
    bizItemSchedule {
      hourly {
        unitStartTime
        unitStock
        unitBookingCount
      }
    }
  }
}`

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

func (c *httpClient) Business(ctx context.Context, businessID string) (*Business, error) {
	data, err := c.post(ctx, graphqlRequest{
		OperationName: "business",
		Variables:     map[string]any{"businessId": businessID},
		Query:         businessQuery,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Business *Business `json:"business"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, resilience.NewMalformedError(eris.Wrap(err, "naver: decode business"))
	}
	if payload.Business == nil || payload.Business.BusinessID == "" {
		return nil, resilience.NewNotFoundError(eris.Errorf("naver: business %s not found", businessID))
	}
	return payload.Business, nil
}

func (c *httpClient) BizItems(ctx context.Context, businessID string) ([]BizItem, error) {
	data, err := c.post(ctx, graphqlRequest{
		OperationName: "bizItems",
		Variables: map[string]any{
			"input": map[string]any{
				"businessId":  businessID,
				"lang":        "ko",
				"projections": "MIN_MAX_PRICE,RESOURCE",
			},
		},
		Query: bizItemsQuery,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		BizItems []BizItem `json:"bizItems"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, resilience.NewMalformedError(eris.Wrap(err, "naver: decode bizItems"))
	}
	return payload.BizItems, nil
}

func (c *httpClient) Schedule(ctx context.Context, params ScheduleParams) (*Schedule, error) {
	data, err := c.post(ctx, graphqlRequest{
		OperationName: "schedule",
		Variables: map[string]any{
			"scheduleParams": map[string]any{
				"businessTypeId":           10,
				"businessId":               params.BusinessID,
				"bizItemId":                params.BizItemID,
				"startDateTime":            params.StartDateTime,
				"endDateTime":              params.EndDateTime,
				"fixedTime":                true,
				"includesHolidaySchedules": true,
			},
		},
		Query: scheduleQuery,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Schedule *struct {
			BizItemSchedule *Schedule `json:"bizItemSchedule"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, resilience.NewMalformedError(eris.Wrap(err, "naver: decode schedule"))
	}
	if payload.Schedule == nil || payload.Schedule.BizItemSchedule == nil {
		return nil, resilience.NewNotFoundError(
			eris.Errorf("naver: no schedule for %s/%s", params.BusinessID, params.BizItemID))
	}
	return payload.Schedule.BizItemSchedule, nil
}

// post sends one GraphQL request and maps transport and envelope failures
// onto the pipeline error taxonomy.
func (c *httpClient) post(ctx context.Context, req graphqlRequest) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "naver: rate limiter wait")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "naver: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "naver: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "naver: %s request", req.OperationName), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "naver: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitedError(
			eris.Errorf("naver: %s throttled", req.OperationName), retryAfter(resp))
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.NewNotFoundError(eris.Errorf("naver: %s: status 404", req.OperationName))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("naver: %s: status %d", req.OperationName, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.NewMalformedError(
			eris.Errorf("naver: %s: unexpected status %d: %s", req.OperationName, resp.StatusCode, truncate(raw, 200)))
	}

	var envelope graphqlEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, resilience.NewMalformedError(eris.Wrapf(err, "naver: decode %s envelope", req.OperationName))
	}
	if len(envelope.Errors) > 0 {
		return nil, resilience.NewMalformedError(
			eris.Errorf("naver: %s: graphql error: %s", req.OperationName, envelope.Errors[0].Message))
	}
	if len(envelope.Data) == 0 {
		return nil, resilience.NewMalformedError(eris.Errorf("naver: %s: empty data", req.OperationName))
	}
	return envelope.Data, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
