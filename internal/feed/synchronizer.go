// Package feed keeps an order book consistent with a venue's depth feed: an
// incremental diff stream reconciled against a REST snapshot by update id.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/alanyoungcy/tradecore/internal/book"
	"github.com/alanyoungcy/tradecore/internal/domain"
)

// DefaultVenue tags every MarketDataUpdate unless Options.Venue is set.
const DefaultVenue = "BinanceUS"

const (
	defaultBufferSize      = 4096
	defaultSnapshotRefetch = 3
)

// UpdateHandler is called once per applied (side, price, size) triple, after
// the book has been mutated.
type UpdateHandler func(update domain.MarketDataUpdate)

// Options tunes a Synchronizer. Zero values select the defaults.
type Options struct {
	Venue           string
	BufferSize      int
	SnapshotRefetch int
}

// Synchronizer owns the write side of one OrderBook. It dials the diff stream
// first, fetches a snapshot, then applies buffered and live diffs in update-id
// order. Any failure terminates the session; Done and Err report it.
type Synchronizer struct {
	symbol  string
	book    *book.OrderBook
	dialer  domain.StreamDialer
	fetcher domain.SnapshotFetcher
	venue   string
	bufSize int
	refetch int
	logger  *slog.Logger

	opMu sync.Mutex // serializes Connect and Stop
	wg   sync.WaitGroup

	mu       sync.Mutex
	cur      *session
	handlers []UpdateHandler
}

type session struct {
	id     string
	cancel context.CancelFunc
	stream domain.DiffStream
	done   chan struct{}
	err    error // set before done is closed
}

// NewSynchronizer creates a Synchronizer writing into ob.
func NewSynchronizer(
	ob *book.OrderBook,
	dialer domain.StreamDialer,
	fetcher domain.SnapshotFetcher,
	opts Options,
	logger *slog.Logger,
) *Synchronizer {
	s := &Synchronizer{
		symbol:  ob.Symbol(),
		book:    ob,
		dialer:  dialer,
		fetcher: fetcher,
		venue:   opts.Venue,
		bufSize: opts.BufferSize,
		refetch: opts.SnapshotRefetch,
		logger: logger.With(
			slog.String("component", "synchronizer"),
			slog.String("symbol", ob.Symbol()),
		),
	}
	if s.venue == "" {
		s.venue = DefaultVenue
	}
	if s.bufSize <= 0 {
		s.bufSize = defaultBufferSize
	}
	if s.refetch <= 0 {
		s.refetch = defaultSnapshotRefetch
	}
	return s
}

// OnUpdate registers a handler. Handlers run on the synchronizer goroutine and
// must not block.
func (s *Synchronizer) OnUpdate(h UpdateHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Connect dials the diff stream and starts the session in the background. It
// is a no-op while a session is live; after a terminated session it starts a
// new one. Only the handshake is synchronous.
func (s *Synchronizer) Connect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil {
		select {
		case <-cur.done:
			s.wg.Wait()
		default:
			return nil
		}
	}

	id := xid.New().String()
	logger := s.logger.With(slog.String("session", id))

	stream, err := s.dialer.Dial(ctx, s.symbol)
	if err != nil {
		logger.Error("depth stream handshake failed", slog.String("error", err.Error()))
		return fmt.Errorf("feed: connect %s: %w", s.symbol, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:     id,
		cancel: cancel,
		stream: stream,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, sess, logger)

	logger.Info("depth stream connected", slog.String("venue", s.venue))
	return nil
}

// Stop closes the transport, cancels the session and waits for its goroutines.
// Safe to call when not connected and more than once.
func (s *Synchronizer) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	sess := s.cur
	s.cur = nil
	s.mu.Unlock()

	if sess != nil {
		sess.cancel()
		_ = sess.stream.Close()
	}
	s.wg.Wait()
}

// Done is closed when the current session terminates. It is nil when no
// session has been started.
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.done
}

// Err returns the error that terminated the current session, or nil while it
// is live or after a clean stop.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	sess := s.cur
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	select {
	case <-sess.done:
		return sess.err
	default:
		return nil
	}
}

func (s *Synchronizer) run(ctx context.Context, sess *session, logger *slog.Logger) {
	defer s.wg.Done()

	diffs := make(chan domain.DepthDiff, s.bufSize)
	errs := make(chan error, 1)

	s.wg.Add(1)
	go s.read(ctx, sess.stream, diffs, errs)

	err := s.sync(ctx, diffs, errs, logger)

	sess.cancel()
	_ = sess.stream.Close()

	if err != nil && ctx.Err() == nil {
		logger.Error("depth stream terminated", slog.String("error", err.Error()))
		sess.err = err
	} else {
		logger.Info("depth stream stopped")
	}
	close(sess.done)
}

// read pumps frames from the transport into diffs. The channel doubles as the
// pre-snapshot buffer.
func (s *Synchronizer) read(ctx context.Context, stream domain.DiffStream, diffs chan<- domain.DepthDiff, errs chan<- error) {
	defer s.wg.Done()
	for {
		diff, err := stream.Next()
		if err != nil {
			errs <- err
			return
		}
		select {
		case diffs <- diff:
		case <-ctx.Done():
			return
		}
	}
}

type syncState struct {
	snapshotID int64
	fetches    int
	synced     bool
	lastFinal  int64
}

func (s *Synchronizer) sync(ctx context.Context, diffs <-chan domain.DepthDiff, errs <-chan error, logger *slog.Logger) error {
	var st syncState
	if err := s.loadSnapshot(ctx, &st, logger); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: stream %s: %w", s.symbol, err)
		case diff := <-diffs:
			if err := s.handleDiff(ctx, &st, diff, logger); err != nil {
				return err
			}
		}
	}
}

func (s *Synchronizer) loadSnapshot(ctx context.Context, st *syncState, logger *slog.Logger) error {
	st.fetches++
	snap, err := s.fetcher.FetchSnapshot(ctx, s.symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("feed: snapshot %s: %w", s.symbol, err)
	}
	if snap.LastUpdateID <= 0 {
		return fmt.Errorf("feed: snapshot %s: %w: missing last update id", s.symbol, domain.ErrProtocol)
	}
	s.book.ApplySnapshot(snap)
	st.snapshotID = snap.LastUpdateID
	st.synced = false

	logger.Info("snapshot applied",
		slog.Int64("last_update_id", snap.LastUpdateID),
		slog.Int("bids", len(snap.Bids)),
		slog.Int("asks", len(snap.Asks)),
		slog.Int("attempt", st.fetches),
	)
	return nil
}

func (s *Synchronizer) handleDiff(ctx context.Context, st *syncState, diff domain.DepthDiff, logger *slog.Logger) error {
	if !st.synced {
		if diff.FinalUpdateID <= st.snapshotID {
			return nil
		}
		if diff.FirstUpdateID > st.snapshotID+1 {
			if st.fetches > s.refetch {
				return fmt.Errorf("feed: %s: %w: snapshot %d still behind stream at %d after %d fetches",
					s.symbol, domain.ErrSequenceGap, st.snapshotID, diff.FirstUpdateID, st.fetches)
			}
			logger.Warn("snapshot older than stream, refetching",
				slog.Int64("last_update_id", st.snapshotID),
				slog.Int64("first_update_id", diff.FirstUpdateID),
			)
			if err := s.loadSnapshot(ctx, st, logger); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			return s.handleDiff(ctx, st, diff, logger)
		}
		st.synced = true
		logger.Info("depth stream synchronized",
			slog.Int64("last_update_id", st.snapshotID),
			slog.Int64("first_update_id", diff.FirstUpdateID),
		)
	} else if diff.FirstUpdateID != st.lastFinal+1 {
		return fmt.Errorf("feed: %s: %w: expected %d, got %d",
			s.symbol, domain.ErrSequenceGap, st.lastFinal+1, diff.FirstUpdateID)
	}

	s.applyDiff(diff)
	st.lastFinal = diff.FinalUpdateID
	return nil
}

func (s *Synchronizer) applyDiff(diff domain.DepthDiff) {
	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()

	apply := func(side domain.Side, levels []domain.PriceLevel) {
		for _, lvl := range levels {
			s.book.ApplyIncremental(side, lvl.Price, lvl.Size)
			update := domain.MarketDataUpdate{
				Symbol:   s.symbol,
				Side:     side,
				Price:    lvl.Price,
				Size:     lvl.Size,
				Venue:    s.venue,
				UpdateID: diff.FinalUpdateID,
			}
			for _, h := range handlers {
				h(update)
			}
		}
	}
	apply(domain.SideBid, diff.Bids)
	apply(domain.SideAsk, diff.Asks)
	s.book.SetLastUpdateID(diff.FinalUpdateID)
}
