package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/book"
	"github.com/alanyoungcy/tradecore/internal/domain"
)

type fakeStream struct {
	items     chan domain.DepthDiff
	fail      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		items:  make(chan domain.DepthDiff, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) Next() (domain.DepthDiff, error) {
	select {
	case d := <-f.items:
		return d, nil
	case err := <-f.fail:
		return domain.DepthDiff{}, err
	case <-f.closed:
		return domain.DepthDiff{}, domain.ErrWSDisconnect
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	dials   int
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (domain.DiffStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type fakeFetcher struct {
	gate  chan struct{}
	ids   []int64
	calls atomic.Int32
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	n := int(f.calls.Add(1)) - 1
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.BookSnapshot{}, ctx.Err()
		}
	}
	id := f.ids[len(f.ids)-1]
	if n < len(f.ids) {
		id = f.ids[n]
	}
	return domain.BookSnapshot{
		Symbol:       symbol,
		LastUpdateID: id,
		Bids:         []domain.PriceLevel{{Price: dec("99"), Size: dec("1")}},
		Asks:         []domain.PriceLevel{{Price: dec("101"), Size: dec("1")}},
	}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func diff(first, final int64, bidPrice string) domain.DepthDiff {
	return domain.DepthDiff{
		Symbol:        "BTCUSDT",
		FirstUpdateID: first,
		FinalUpdateID: final,
		Bids:          []domain.PriceLevel{{Price: dec(bidPrice), Size: dec("1")}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hasBid(ob *book.OrderBook, price string) bool {
	for lvl := range ob.Depth(domain.SideBid, ob.Levels(domain.SideBid)) {
		if lvl.Price.Equal(dec(price)) {
			return true
		}
	}
	return false
}

func TestSynchronizerBuffersUntilSnapshot(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	fetcher := &fakeFetcher{gate: make(chan struct{}), ids: []int64{8}}
	s := NewSynchronizer(ob, dialer, fetcher, Options{}, testLogger())

	var mu sync.Mutex
	var updates []domain.MarketDataUpdate
	s.OnUpdate(func(u domain.MarketDataUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	stream := dialer.last()
	stream.items <- diff(1, 5, "90")
	stream.items <- diff(6, 8, "91")
	stream.items <- diff(7, 10, "92")
	stream.items <- diff(11, 12, "93")
	close(fetcher.gate)

	assert.Eventually(t, func() bool { return ob.LastUpdateID() == 12 }, 2*time.Second, 5*time.Millisecond)

	assert.False(t, hasBid(ob, "90"))
	assert.False(t, hasBid(ob, "91"))
	assert.True(t, hasBid(ob, "92"))
	assert.True(t, hasBid(ob, "93"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	assert.Equal(t, DefaultVenue, updates[0].Venue)
	assert.Equal(t, domain.SideBid, updates[0].Side)
	assert.Equal(t, int64(10), updates[0].UpdateID)
	assert.NoError(t, s.Err())
}

func TestSynchronizerPublishesAfterMutation(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{Venue: "test"}, testLogger())

	var seen atomic.Bool
	s.OnUpdate(func(u domain.MarketDataUpdate) {
		best, err := ob.Best(domain.SideBid)
		seen.Store(err == nil && best.Price.Equal(u.Price) && u.Venue == "test")
	})

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	dialer.last().items <- diff(2, 2, "150")
	assert.Eventually(t, seen.Load, 2*time.Second, 5*time.Millisecond)
}

func TestSynchronizerGapTerminates(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{10}}, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	stream := dialer.last()
	stream.items <- diff(11, 12, "95")
	stream.items <- diff(14, 15, "96")

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on gap")
	}
	assert.ErrorIs(t, s.Err(), domain.ErrSequenceGap)
	assert.True(t, stream.isClosed())
	assert.True(t, hasBid(ob, "95"))
	assert.False(t, hasBid(ob, "96"))
}

func TestSynchronizerRefetchesStaleSnapshot(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	fetcher := &fakeFetcher{gate: make(chan struct{}), ids: []int64{5, 20}}
	s := NewSynchronizer(ob, dialer, fetcher, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	stream := dialer.last()
	stream.items <- diff(15, 21, "97")
	stream.items <- diff(22, 23, "98")
	close(fetcher.gate)

	assert.Eventually(t, func() bool { return ob.LastUpdateID() == 23 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.NoError(t, s.Err())
}

func TestSynchronizerGivesUpOnStaleSnapshot(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	fetcher := &fakeFetcher{ids: []int64{1}}
	s := NewSynchronizer(ob, dialer, fetcher, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	dialer.last().items <- diff(10, 11, "97")

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.ErrorIs(t, s.Err(), domain.ErrSequenceGap)
	assert.Equal(t, int32(4), fetcher.calls.Load())
}

func TestSynchronizerRejectsSnapshotWithoutUpdateID(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	fetcher := &fakeFetcher{ids: []int64{0}}
	s := NewSynchronizer(ob, dialer, fetcher, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.ErrorIs(t, s.Err(), domain.ErrProtocol)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 0, ob.Levels(domain.SideBid), "the id-less snapshot is not applied")
	assert.True(t, dialer.last().isClosed())
}

func TestSynchronizerStreamErrorTerminates(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()

	dialer.last().fail <- domain.ErrProtocol

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.ErrorIs(t, s.Err(), domain.ErrProtocol)
}

func TestSynchronizerHandshakeFailure(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{err: errors.New("tls: bad certificate")}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{}, testLogger())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad certificate")
	assert.Nil(t, s.Done())
	s.Stop()
}

func TestSynchronizerConnectIdempotent(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))
	s.Stop()

	assert.Equal(t, 1, dialer.dials)
}

func TestSynchronizerStopStartCycles(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{}, testLogger())

	s.Stop()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Connect(context.Background()))
		stream := dialer.last()
		s.Stop()
		s.Stop()
		assert.True(t, stream.isClosed())
		assert.NoError(t, s.Err())
	}
	assert.Equal(t, 3, dialer.dials)
}

func TestSynchronizerReconnectAfterTermination(t *testing.T) {
	ob := book.New("BTCUSDT")
	dialer := &fakeDialer{}
	s := NewSynchronizer(ob, dialer, &fakeFetcher{ids: []int64{1}}, Options{}, testLogger())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Stop()
	dialer.last().fail <- domain.ErrProtocol
	<-s.Done()

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 2, dialer.dials)
	assert.NoError(t, s.Err())
}
