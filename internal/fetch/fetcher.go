// Package fetch retrieves full venue detail (branch attributes plus room
// listings) from the booking API, with retries and a circuit breaker around
// the upstream.
package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roomscout/collector-cli/internal/config"
	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/resilience"
	"github.com/roomscout/collector-cli/pkg/naver"
)

// RoomDetail is the raw per-room payload handed to extraction: identity,
// free-text fragments, and the structured attributes that bypass extraction.
type RoomDetail struct {
	BizItemID         string
	Name              string
	Desc              string
	PricePerHour      int
	CanReserveOneHour bool
	ImageURLs         []string
}

// VenueDetail is one fetched venue: the branch record plus its rooms.
type VenueDetail struct {
	Branch model.BranchRecord
	Rooms  []RoomDetail
}

// Fetcher wraps the booking client with retry and circuit-breaker policy.
// NotFound (delisted venue) and Malformed results surface immediately; only
// transport-level failures are retried or trip the breaker.
type Fetcher struct {
	client  naver.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// New builds a Fetcher from config.
func New(client naver.Client, cfg config.FetchConfig) *Fetcher {
	initial, maxBackoff := cfg.RetryBackoff()
	return &Fetcher{
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:         cfg.MaxRetries,
			InitialBackoff:      initial,
			MaxBackoff:          maxBackoff,
			Multiplier:          2.0,
			JitterFraction:      0.25,
			RateLimitMultiplier: cfg.RateLimitMultiplier,
			OnRetry:             resilience.RetryLogger("naver", "fetch_detail"),
		},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.BreakerResetSecs) * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("booking API circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Fetch returns the full detail for one business. The two upstream queries
// run inside one breaker execution so a flapping endpoint is counted once per
// venue, not once per query.
func (f *Fetcher) Fetch(ctx context.Context, businessID string) (*VenueDetail, error) {
	return resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*VenueDetail, error) {
		return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*VenueDetail, error) {
			return f.fetchOnce(ctx, businessID)
		})
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, businessID string) (*VenueDetail, error) {
	business, err := f.client.Business(ctx, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: business %s", businessID)
	}

	items, err := f.client.BizItems(ctx, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: biz items %s", businessID)
	}

	detail := &VenueDetail{
		Branch: model.BranchRecord{
			BusinessID:  business.BusinessID,
			Name:        business.Name,
			DisplayName: business.BusinessDisplayName,
			PhoneNumber: business.PhoneNumber,
			StandbyDays: business.StandbyDays,
		},
		Rooms: make([]RoomDetail, 0, len(items)),
	}
	if business.Coordinates != nil {
		lat, lng := business.Coordinates.Latitude, business.Coordinates.Longitude
		detail.Branch.Lat = &lat
		detail.Branch.Lng = &lng
	}

	for _, item := range items {
		detail.Rooms = append(detail.Rooms, toRoomDetail(item))
	}
	return detail, nil
}

func toRoomDetail(item naver.BizItem) RoomDetail {
	room := RoomDetail{
		BizItemID: item.BizItemID,
		Name:      item.Name,
		Desc:      item.Desc,
		// Booking units above one mean the venue forces multi-hour slots.
		CanReserveOneHour: item.MinBookingTime <= 1,
	}
	if item.MinMaxPrice != nil {
		room.PricePerHour = item.MinMaxPrice.MinPrice
	}
	for _, res := range item.Resources {
		if res.ResourceURL != "" {
			room.ImageURLs = append(room.ImageURLs, res.ResourceURL)
		}
	}
	return room
}
