package domain

import "context"

// DiffStream is an open incremental depth stream for one symbol. Next blocks
// until a frame is decoded or the stream fails; Close unblocks a pending Next.
type DiffStream interface {
	Next() (DepthDiff, error)
	Close() error
}

// StreamDialer opens a DiffStream.
type StreamDialer interface {
	Dial(ctx context.Context, symbol string) (DiffStream, error)
}

// SnapshotFetcher retrieves a full-depth book snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, symbol string) (BookSnapshot, error)
}
