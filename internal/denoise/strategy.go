package denoise

// Strategy names one way of producing the submitted audio.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyWholeBuffer
	StrategyChunked
	StrategyTranscoder
	StrategyIdentity
)

func (s Strategy) String() string {
	switch s {
	case StrategyWholeBuffer:
		return "whole_buffer"
	case StrategyChunked:
		return "chunked"
	case StrategyTranscoder:
		return "transcoder"
	case StrategyIdentity:
		return "identity"
	default:
		return "none"
	}
}

// Filters reports whether the strategy removes noise.
func (s Strategy) Filters() bool {
	return s == StrategyWholeBuffer || s == StrategyChunked
}

// Thresholds are fixed for the life of the process.
type Thresholds struct {
	LargeFileFrames     int64
	ChunkFrames         int
	GatingMaxSamples    int
	MaxWholeBufferBytes int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeFileFrames:     10_000_000,
		ChunkFrames:         2_500_000,
		GatingMaxSamples:    5_000_000,
		MaxWholeBufferBytes: 1 << 30,
	}
}

// Classify picks the in-process strategy from the frame count. A negative
// frame count means unknown and is estimated from the byte size as 16-bit mono.
func Classify(frames, byteSize int64, th Thresholds) Strategy {
	if frames < 0 {
		frames = byteSize / 2
	}
	if frames > th.LargeFileFrames {
		return StrategyChunked
	}
	return StrategyWholeBuffer
}

// Plan is the ordered fallback list for a primary strategy.
func Plan(primary Strategy) []Strategy {
	switch primary {
	case StrategyChunked:
		return []Strategy{StrategyChunked, StrategyTranscoder, StrategyIdentity}
	default:
		return []Strategy{StrategyWholeBuffer, StrategyChunked, StrategyTranscoder, StrategyIdentity}
	}
}

// wholeBufferBytes estimates peak memory for decoding and filtering frames
// in one piece: the interleaved decode plus float64 work buffers.
func wholeBufferBytes(frames int64, channels int) int64 {
	if channels < 1 {
		channels = 1
	}
	return frames * (int64(channels)*4 + 48)
}
