// Package audioconv decodes audio files into 16 kHz mono float32 PCM, the
// format the transcriber expects.
package audioconv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const TargetRate = 16000

type Options struct {
	MaxSamples int
}

type decodeFunc func(io.ReadSeeker) (pcm []float32, channels, rate int, err error)

var byExt = map[string][]decodeFunc{
	".wav":  {decodeWAV},
	".mp3":  {decodeMP3},
	".ogg":  {decodeVorbis, decodeOpus},
	".oga":  {decodeVorbis, decodeOpus},
	".opus": {decodeOpus},
}

var byMagic = map[string][]decodeFunc{
	"RIFF": {decodeWAV},
	"OggS": {decodeVorbis, decodeOpus},
	"ID3\x03": {decodeMP3},
	"ID3\x04": {decodeMP3},
}

func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoders, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		magic, _ := bufio.NewReader(f).Peek(4)
		decoders, ok = byMagic[string(magic)]
		if !ok {
			return nil, fmt.Errorf("unsupported audio format: %s", path)
		}
	}

	return Decode(ctx, f, decoders, opt)
}

func Decode(ctx context.Context, r io.ReadSeeker, decoders []decodeFunc, opt Options) ([]float32, error) {
	var lastErr error
	for _, dec := range decoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		pcm, ch, rate, err := dec(r)
		if err != nil {
			lastErr = err
			continue
		}
		return normalize(pcm, ch, rate, opt), nil
	}
	return nil, fmt.Errorf("decode audio: %w", lastErr)
}

func normalize(pcm []float32, channels, rate int, opt Options) []float32 {
	if channels > 1 {
		pcm = downmix(pcm, channels)
	}
	if rate > 0 && rate != TargetRate {
		pcm = resample(pcm, rate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm
}
