package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CanonicalSampleRate is what the transcoder produces for extracted audio.
const CanonicalSampleRate = 16000

// Normalizer turns any accepted upload into an audio asset.
type Normalizer struct {
	caps       Capabilities
	transcoder Transcoder
	log        *logrus.Entry
}

// NewNormalizer creates a Normalizer. transcoder may be nil when caps
// reports none installed.
func NewNormalizer(caps Capabilities, transcoder Transcoder, log *logrus.Entry) *Normalizer {
	return &Normalizer{caps: caps, transcoder: transcoder, log: log}
}

// Normalize returns native audio untouched. Video and unrecognised inputs are
// extracted to mono 16 kHz PCM WAV inside ws; converted reports which happened.
func (n *Normalizer) Normalize(ctx context.Context, ws *Workspace, in Asset, class Classification) (out Asset, converted bool, err error) {
	if class == ClassNativeAudio {
		return in, false, nil
	}
	if !n.caps.TranscoderAvailable || n.transcoder == nil {
		return Asset{}, false, fmt.Errorf("%w: %s input without a transcoder", ErrUnsupportedFormat, class)
	}

	base := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	target := ws.NewPath(base + ".wav")

	n.log.WithFields(logrus.Fields{
		"stage": "normalize",
		"class": class.String(),
		"input": in.Path,
	}).Debug("extracting audio track")

	if err := n.transcoder.Extract(ctx, in.Path, target); err != nil {
		ws.Discard(target)
		return Asset{}, false, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	out, err = StatAsset(target, FormatConvertedAudio, CanonicalSampleRate, true)
	if err != nil {
		return Asset{}, false, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	ws.Supersede(in, out)
	return out, true, nil
}
