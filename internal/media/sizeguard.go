package media

import (
	"context"

	"github.com/sirupsen/logrus"
)

const (
	// BackendLimitBytes is the hard upload limit of the transcription API.
	BackendLimitBytes = 25 << 20
	// DefaultCeilingBytes leaves one MiB of headroom under the backend limit.
	DefaultCeilingBytes = BackendLimitBytes - 1<<20
	DefaultRecompressKbps = 64
)

// SizeGuard keeps the submitted asset under the backend's upload limit.
type SizeGuard struct {
	caps        Capabilities
	transcoder  Transcoder
	ceiling     int64
	bitrateKbps int
	log         *logrus.Entry
}

// NewSizeGuard creates a SizeGuard. A non-positive ceiling or bitrate falls
// back to DefaultCeilingBytes or DefaultRecompressKbps.
func NewSizeGuard(caps Capabilities, transcoder Transcoder, ceiling int64, bitrateKbps int, log *logrus.Entry) *SizeGuard {
	if ceiling <= 0 {
		ceiling = DefaultCeilingBytes
	}
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultRecompressKbps
	}
	return &SizeGuard{caps: caps, transcoder: transcoder, ceiling: ceiling, bitrateKbps: bitrateKbps, log: log}
}

// Ceiling returns the size above which Enforce recompresses.
func (g *SizeGuard) Ceiling() int64 { return g.ceiling }

// Enforce recompresses in when it is larger than the ceiling. It never fails:
// when recompression is impossible the oversized asset is passed through and
// the backend reports the size error.
func (g *SizeGuard) Enforce(ctx context.Context, ws *Workspace, in Asset) (Asset, bool) {
	if in.ByteSize <= g.ceiling {
		return in, false
	}

	log := g.log.WithFields(logrus.Fields{
		"stage":   "size_check",
		"bytes":   in.ByteSize,
		"ceiling": g.ceiling,
	})

	if !g.caps.TranscoderAvailable || g.transcoder == nil {
		log.Warn("asset over size ceiling and no transcoder available; submitting as is")
		return in, false
	}

	target := ws.NewPath("compressed.mp3")
	if err := g.transcoder.Compress(ctx, in.Path, target, g.bitrateKbps); err != nil {
		ws.Discard(target)
		log.WithError(err).Warn("recompression failed; submitting oversized asset")
		return in, false
	}

	out, err := StatAsset(target, FormatConvertedAudio, CanonicalSampleRate, true)
	if err != nil {
		log.WithError(err).Warn("recompressed asset unreadable; submitting oversized asset")
		return in, false
	}

	log.WithField("compressed_bytes", out.ByteSize).Info("asset recompressed")
	ws.Supersede(in, out)
	return out, true
}
