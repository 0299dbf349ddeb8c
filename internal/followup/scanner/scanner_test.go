package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

type MockDealSource struct {
	mock.Mock
}

func (m *MockDealSource) ListDeals(ctx context.Context, stages []string) ([]models.Deal, error) {
	args := m.Called(ctx, stages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Deal), args.Error(1)
}

func (m *MockDealSource) LastEmailSentAt(ctx context.Context, deal models.Deal) (*time.Time, error) {
	args := m.Called(ctx, deal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

const day = 24 * time.Hour

func newScanner(t *testing.T, src DealSource) *Scanner {
	return New(src, Options{Concurrency: 3, Logger: logger.NewTestLogger(t), Now: func() time.Time { return now }})
}

func TestScan_ThresholdAndOrder(t *testing.T) {
	stages := []string{"appointmentscheduled", "qualifiedtobuy"}
	deals := []models.Deal{
		{ID: "d5", Name: "fresh"},
		{ID: "d3", Name: "exactly threshold"},
		{ID: "d2", Name: "never emailed"},
		{ID: "d4", Name: "very old"},
		{ID: "d1", Name: "also threshold"},
		{ID: "d6", Name: "one hour short"},
	}

	src := new(MockDealSource)
	src.On("ListDeals", mock.Anything, stages).Return(deals, nil)
	src.On("LastEmailSentAt", mock.Anything, deals[0]).Return(ago(3*day), nil)
	src.On("LastEmailSentAt", mock.Anything, deals[1]).Return(ago(14*day), nil)
	src.On("LastEmailSentAt", mock.Anything, deals[2]).Return(nil, nil)
	src.On("LastEmailSentAt", mock.Anything, deals[3]).Return(ago(200*day+5*time.Hour), nil)
	src.On("LastEmailSentAt", mock.Anything, deals[4]).Return(ago(14*day+23*time.Hour), nil)
	src.On("LastEmailSentAt", mock.Anything, deals[5]).Return(ago(14*day-time.Hour), nil)

	res, err := newScanner(t, src).Scan(context.Background(), stages, 14)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Fetched)
	var ids []string
	for _, d := range res.Deals {
		ids = append(ids, d.Deal.ID)
	}
	assert.Equal(t, []string{"d2", "d4", "d1", "d3"}, ids)

	assert.Nil(t, res.Deals[0].DaysSinceLastEmail())
	assert.Nil(t, res.Deals[0].Deal.LastEmailSentAt)
	require.NotNil(t, res.Deals[1].DaysSinceLastEmail())
	assert.Equal(t, 200, *res.Deals[1].DaysSinceLastEmail())
	assert.Equal(t, 14, res.Deals[2].Days)
	assert.NotNil(t, res.Deals[2].Deal.LastEmailSentAt)
	assert.Empty(t, res.Unresolved)
	src.AssertExpectations(t)
}

func TestScan_ZeroThresholdKeepsEverything(t *testing.T) {
	deals := []models.Deal{{ID: "a"}, {ID: "b"}}
	src := new(MockDealSource)
	src.On("ListDeals", mock.Anything, mock.Anything).Return(deals, nil)
	src.On("LastEmailSentAt", mock.Anything, mock.Anything).Return(ago(time.Hour), nil)

	res, err := newScanner(t, src).Scan(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, res.Deals, 2)
	assert.Equal(t, "a", res.Deals[0].Deal.ID)
}

func TestScan_LookupFailureSkipsDeal(t *testing.T) {
	deals := []models.Deal{{ID: "ok"}, {ID: "broken"}}
	src := new(MockDealSource)
	src.On("ListDeals", mock.Anything, mock.Anything).Return(deals, nil)
	src.On("LastEmailSentAt", mock.Anything, deals[0]).Return(ago(30*day), nil)
	src.On("LastEmailSentAt", mock.Anything, deals[1]).Return(nil, errors.New("502 bad gateway"))

	res, err := newScanner(t, src).Scan(context.Background(), []string{"s"}, 14)
	require.NoError(t, err)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, "ok", res.Deals[0].Deal.ID)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "broken", res.Unresolved[0].Deal.ID)
	assert.Contains(t, res.Unresolved[0].Error, "502")

	entry := res.Unresolved[0].ReportEntry()
	assert.Equal(t, models.OutcomeFailed, entry.Outcome)
	assert.Contains(t, entry.Error, "REQUIRED_SOURCE_FAILED")
}

func TestScan_ListFailure(t *testing.T) {
	src := new(MockDealSource)
	src.On("ListDeals", mock.Anything, mock.Anything).Return(nil, errors.New("401"))

	res, err := newScanner(t, src).Scan(context.Background(), []string{"s"}, 14)
	assert.Error(t, err)
	assert.Nil(t, res)
	src.AssertNotCalled(t, "LastEmailSentAt", mock.Anything, mock.Anything)
}

func TestScan_NegativeThreshold(t *testing.T) {
	_, err := newScanner(t, new(MockDealSource)).Scan(context.Background(), nil, -1)
	assert.Error(t, err)
}

type countingSource struct {
	deals    []models.Deal
	inFlight int32
	peak     int32
}

func (c *countingSource) ListDeals(context.Context, []string) ([]models.Deal, error) {
	return c.deals, nil
}

func (c *countingSource) LastEmailSentAt(context.Context, models.Deal) (*time.Time, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)
	return nil, nil
}

func TestScan_BoundedConcurrency(t *testing.T) {
	src := &countingSource{}
	for i := 0; i < 12; i++ {
		src.deals = append(src.deals, models.Deal{ID: string(rune('a' + i))})
	}

	res, err := newScanner(t, src).Scan(context.Background(), nil, 14)
	require.NoError(t, err)
	assert.Len(t, res.Deals, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&src.peak), int32(3))
}
