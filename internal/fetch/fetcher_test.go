package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/collector-cli/internal/config"
	"github.com/roomscout/collector-cli/internal/resilience"
	"github.com/roomscout/collector-cli/pkg/naver"
)

// fakeClient scripts booking API behavior per call.
type fakeClient struct {
	business      *naver.Business
	businessErr   error
	businessCalls int
	items         []naver.BizItem
	itemsErr      error
	failFirstN    int
}

func (f *fakeClient) Business(_ context.Context, _ string) (*naver.Business, error) {
	f.businessCalls++
	if f.failFirstN >= f.businessCalls {
		return nil, resilience.NewTransientError(errors.New("connection reset"), 0)
	}
	return f.business, f.businessErr
}

func (f *fakeClient) BizItems(_ context.Context, _ string) ([]naver.BizItem, error) {
	return f.items, f.itemsErr
}

func (f *fakeClient) Schedule(_ context.Context, _ naver.ScheduleParams) (*naver.Schedule, error) {
	return nil, resilience.NewNotFoundError(errors.New("no schedule"))
}

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		MaxRetries:           3,
		InitialBackoffMillis: 1,
		MaxBackoffSecs:       1,
		RateLimitMultiplier:  2,
		BreakerThreshold:     5,
		BreakerResetSecs:     60,
	}
}

func sampleBusiness() *naver.Business {
	return &naver.Business{
		BusinessID:          "522011",
		Name:                "drum-studio",
		BusinessDisplayName: "드럼 연습실 합정점",
		Coordinates:         &naver.Coordinates{Latitude: 37.5665, Longitude: 126.9784},
		PhoneNumber:         "02-1234-5678",
		StandbyDays:         14,
	}
}

func TestFetch_MapsDetail(t *testing.T) {
	client := &fakeClient{
		business: sampleBusiness(),
		items: []naver.BizItem{
			{
				BizItemID:      "7001",
				Name:           "[평일] 블랙룸",
				Desc:           "최대 8명",
				MinMaxPrice:    &naver.MinMaxPrice{MinPrice: 12000, MaxNormalPrice: 15000},
				Resources:      []naver.Resource{{ResourceURL: "https://img/1.jpg"}, {ResourceURL: ""}},
				MinBookingTime: 1,
			},
			{BizItemID: "7002", Name: "룸B", MinBookingTime: 2},
		},
	}

	detail, err := New(client, testFetchConfig()).Fetch(context.Background(), "522011")
	require.NoError(t, err)

	assert.Equal(t, "522011", detail.Branch.BusinessID)
	assert.Equal(t, "드럼 연습실 합정점", detail.Branch.DisplayName)
	require.NotNil(t, detail.Branch.Lat)
	assert.InDelta(t, 37.5665, *detail.Branch.Lat, 1e-9)
	assert.Equal(t, 14, detail.Branch.StandbyDays)

	require.Len(t, detail.Rooms, 2)
	assert.Equal(t, 12000, detail.Rooms[0].PricePerHour)
	assert.True(t, detail.Rooms[0].CanReserveOneHour)
	assert.Equal(t, []string{"https://img/1.jpg"}, detail.Rooms[0].ImageURLs)
	assert.Equal(t, 0, detail.Rooms[1].PricePerHour)
	assert.False(t, detail.Rooms[1].CanReserveOneHour)
}

func TestFetch_RetriesTransient(t *testing.T) {
	client := &fakeClient{
		business:   sampleBusiness(),
		failFirstN: 2,
	}

	detail, err := New(client, testFetchConfig()).Fetch(context.Background(), "522011")
	require.NoError(t, err)
	assert.Equal(t, 3, client.businessCalls)
	assert.Equal(t, "522011", detail.Branch.BusinessID)
}

func TestFetch_NotFoundNotRetried(t *testing.T) {
	client := &fakeClient{
		businessErr: resilience.NewNotFoundError(errors.New("delisted")),
	}

	_, err := New(client, testFetchConfig()).Fetch(context.Background(), "000000")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.Equal(t, 1, client.businessCalls)
}

func TestFetch_BreakerOpensOnRepeatedTransient(t *testing.T) {
	client := &fakeClient{failFirstN: 1 << 30}
	cfg := testFetchConfig()
	cfg.MaxRetries = 1
	cfg.BreakerThreshold = 2
	fetcher := New(client, cfg)

	ctx := context.Background()
	_, err := fetcher.Fetch(ctx, "1")
	require.Error(t, err)
	_, err = fetcher.Fetch(ctx, "2")
	require.Error(t, err)

	_, err = fetcher.Fetch(ctx, "3")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	// The third fetch was rejected without touching the upstream.
	assert.Equal(t, 2, client.businessCalls)
}

func TestFetch_NotFoundDoesNotTripBreaker(t *testing.T) {
	client := &fakeClient{
		businessErr: resilience.NewNotFoundError(errors.New("delisted")),
	}
	cfg := testFetchConfig()
	cfg.BreakerThreshold = 2
	fetcher := New(client, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := fetcher.Fetch(ctx, "000000")
		require.Error(t, err)
		assert.True(t, resilience.IsNotFound(err))
	}
	assert.Equal(t, 5, client.businessCalls)
}

func TestFetch_BizItemsErrorSurfaces(t *testing.T) {
	client := &fakeClient{
		business: sampleBusiness(),
		itemsErr: resilience.NewMalformedError(errors.New("bad payload")),
	}

	_, err := New(client, testFetchConfig()).Fetch(context.Background(), "522011")
	require.Error(t, err)
	assert.True(t, resilience.IsMalformed(err))
}
