// Package media implements the demux/decode/filter pipeline orchestration:
// FormatContext stream discovery, StreamDescriptor selection, per-frame
// dispatch in presentation order, and the bounded result sink. CORE never
// links a codec library itself (spec.md §1 treats vendor codec libraries as
// an external collaborator) — a concrete worker binary wires a Demuxer
// implementation backed by a real decoder (e.g. a cgo ffmpeg binding).
package media

import "time"

// CodecKind distinguishes the media types a stream may carry.
type CodecKind string

const (
	CodecVideo CodecKind = "video"
	CodecAudio CodecKind = "audio"
)

// StreamInfo describes one stream exposed by the input's FormatContext.
type StreamInfo struct {
	Index     int
	Kind      CodecKind
	TimeBase  Rational
	Width     int // video only
	Height    int // video only
	SampleRate int // audio only
}

// Rational is a numerator/denominator pair, the natural representation of a
// codec time base.
type Rational struct {
	Num, Den int
}

// FormatContext exposes the input's stream metadata to a MediaWorker's
// InitProcess callback.
type FormatContext struct {
	SourceURL string
	Streams   []StreamInfo
	Duration  time.Duration
}

// StreamByIndex returns the StreamInfo for index, or ok=false if absent.
func (f *FormatContext) StreamByIndex(index int) (StreamInfo, bool) {
	for _, s := range f.Streams {
		if s.Index == index {
			return s, true
		}
	}
	return StreamInfo{}, false
}

// VideoFilter is one stage of a video filter graph.
type VideoFilter struct {
	Scale       *ScaleFilter  `json:"scale,omitempty"`
	PixelFormat *string       `json:"format,omitempty"`
}

// ScaleFilter resizes a video frame to Width x Height.
type ScaleFilter struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// AudioFilter is one stage of an audio filter graph.
type AudioFilter struct {
	Resample      *int           `json:"resample,omitempty"` // target sample rate
	ChannelLayout *ChannelLayout `json:"channel_layout,omitempty"`
}

// ChannelLayout describes the target channel arrangement for a Resample/
// ChannelLayout audio filter.
type ChannelLayout struct {
	Channels int    `json:"channels"`
	Layout   string `json:"layout"` // e.g. "stereo", "mono"
}

// StreamDescriptor is a worker's declaration (returned from InitProcess) of
// which stream it wants to consume and with what filter graph.
type StreamDescriptor interface {
	StreamIndex() int
	isStreamDescriptor()
}

// VideoStream selects a video stream with an optional filter chain.
type VideoStream struct {
	Index   int
	Filters []VideoFilter
}

func (v VideoStream) StreamIndex() int  { return v.Index }
func (v VideoStream) isStreamDescriptor() {}

// AudioStream selects an audio stream with an optional filter chain.
type AudioStream struct {
	Index   int
	Filters []AudioFilter
}

func (a AudioStream) StreamIndex() int  { return a.Index }
func (a AudioStream) isStreamDescriptor() {}

// Frame is one decoded (and filtered, if a filter graph was wired) media
// frame pulled from the demuxer in presentation order.
type Frame struct {
	StreamIndex int
	PTS         int64 // presentation timestamp, in the stream's time base
	Data        []byte
	Width       int // video only, after filtering
	Height      int // video only, after filtering
	SampleRate  int // audio only, after filtering
}
