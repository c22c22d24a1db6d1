package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Classification is the coarse kind of an upload, decided from its name.
type Classification int

const (
	ClassUnsupported Classification = iota
	ClassNativeAudio
	ClassVideo
)

func (c Classification) String() string {
	switch c {
	case ClassNativeAudio:
		return "native-audio"
	case ClassVideo:
		return "video"
	default:
		return "unsupported"
	}
}

var audioExtensions = map[string]struct{}{
	"wav": {}, "wave": {}, "mp3": {}, "mpga": {}, "mpeg": {}, "m4a": {},
	"flac": {}, "ogg": {}, "oga": {}, "opus": {}, "aac": {}, "wma": {},
}

var videoExtensions = map[string]struct{}{
	"mp4": {}, "mkv": {}, "mov": {}, "avi": {}, "webm": {}, "wmv": {},
	"flv": {}, "m4v": {}, "3gp": {}, "mpg": {}, "ts": {},
}

// Extension returns the lower-cased text after the last dot of the base name.
func Extension(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Classify looks only at the file name. It never opens the file.
func Classify(filename string) Classification {
	ext := Extension(filename)
	if _, ok := audioExtensions[ext]; ok {
		return ClassNativeAudio
	}
	if _, ok := videoExtensions[ext]; ok {
		return ClassVideo
	}
	return ClassUnsupported
}

// Probe gates uploads on their extension and the host's capabilities.
type Probe struct {
	caps Capabilities
}

// NewProbe creates a Probe for the detected capabilities.
func NewProbe(caps Capabilities) *Probe {
	return &Probe{caps: caps}
}

// Check classifies filename and rejects anything that would need a
// transcoder this host does not have.
func (p *Probe) Check(filename string) (Classification, error) {
	class := Classify(filename)
	if class != ClassNativeAudio && !p.caps.TranscoderAvailable {
		return class, fmt.Errorf("%w: %q (%s) needs a transcoder and none is installed", ErrUnsupportedFormat, filename, class)
	}
	return class, nil
}
