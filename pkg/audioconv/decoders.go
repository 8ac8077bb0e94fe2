package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/pekim/opus"
)

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, 0, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))
	pcm := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = float32(clamp(float64(v)*scale, -1, 1))
	}

	ch, rate := 1, 44100
	if buf.Format != nil {
		ch = max(buf.Format.NumChannels, 1)
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	return pcm, ch, rate, nil
}

// go-mp3 always produces interleaved 16-bit stereo.
func decodeMP3(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, 0, err
	}
	samples := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, samples); err != nil {
		return nil, 0, 0, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return fromInt16(samples), 2, rate, nil
}

func decodeVorbis(r io.ReadSeeker) ([]float32, int, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, 0, errors.New("invalid ogg/vorbis stream")
	}
	return pcm, format.Channels, format.SampleRate, nil
}

// Opus always decodes at 48 kHz.
func decodeOpus(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := opus.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)
	chunk := make([]int16, 24000*ch)

	var pcm []float32
	for {
		n, err := dec.Read(chunk)
		if n > 0 {
			pcm = append(pcm, fromInt16(chunk[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}
	if len(pcm) == 0 {
		return nil, 0, 0, errors.New("empty opus stream")
	}
	return pcm, ch, 48000, nil
}
