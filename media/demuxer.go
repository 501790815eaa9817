package media

import "context"

// Demuxer is the boundary to a concrete codec library. A worker binary
// wires a real implementation (e.g. a cgo ffmpeg binding); CORE drives it
// through this interface and never calls into a codec library directly.
type Demuxer interface {
	// Open resolves and opens sourceURL, returning its stream metadata.
	Open(ctx context.Context, sourceURL string) (*FormatContext, error)

	// SelectStreams configures the demuxer to decode (and, where a filter
	// graph was declared, filter) only the given descriptors. Called once
	// after InitProcess returns its selection.
	SelectStreams(descriptors []StreamDescriptor) error

	// NextFrame pulls and decodes the next frame across all selected
	// streams in presentation order for each stream (no cross-stream
	// ordering guarantee, per §4.7). Returns nil, nil at end of stream.
	NextFrame(ctx context.Context) (*Frame, error)

	// Drain aborts in-flight decoding so NextFrame returns promptly; used
	// by cancellation to stop pulling without waiting for EOF.
	Drain()

	// Close releases demuxer resources.
	Close() error
}
