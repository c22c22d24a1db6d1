package media

import (
	"fmt"
	"os"
)

// FormatTag records what produced an asset.
type FormatTag string

const (
	FormatNativeAudio    FormatTag = "native-audio"
	FormatConvertedAudio FormatTag = "converted-audio"
	FormatUnknown        FormatTag = "unknown"
)

// Asset is a media file on local disk. Derived assets were written by a
// pipeline stage and may be deleted once superseded; the caller's upload never is.
type Asset struct {
	Path       string
	ByteSize   int64
	SampleRate int
	Format     FormatTag
	Derived    bool
}

// StatAsset builds an Asset for an existing file, reading its size from disk.
func StatAsset(path string, format FormatTag, sampleRate int, derived bool) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("stat %s: is a directory", path)
	}
	return Asset{
		Path:       path,
		ByteSize:   info.Size(),
		SampleRate: sampleRate,
		Format:     format,
		Derived:    derived,
	}, nil
}
