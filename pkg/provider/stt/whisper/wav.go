package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// targetSampleRate is the sample rate whisper.cpp expects.
const targetSampleRate = 16000

var (
	errShortFile      = errors.New("truncated WAV file")
	errNoDataChunk    = errors.New("WAV file has no data chunk")
	errUnsupportedFmt = errors.New("unsupported WAV format, want 16-bit PCM")
)

// decodeAudio converts a recording to 16 kHz mono float32 samples. RIFF/WAV
// input is parsed and resampled as needed; anything else is assumed to be
// raw 16 kHz mono 16-bit little-endian PCM.
func decodeAudio(audio []byte) ([]float32, error) {
	if len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE" {
		return decodeWAV(audio)
	}
	return pcmToFloat32(audio), nil
}

// decodeWAV walks the RIFF chunk list, extracts the PCM payload described by
// the fmt chunk, down-mixes to mono, and resamples to 16 kHz.
func decodeWAV(wav []byte) ([]float32, error) {
	var (
		channels   int
		sampleRate int
		haveFmt    bool
		data       []byte
	)

	// Chunks start after the 12-byte RIFF header.
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(wav) {
			return nil, errShortFile
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errShortFile
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("%w: format=%d bits=%d", errUnsupportedFmt, format, bits)
			}
			if channels < 1 || sampleRate < 1 {
				return nil, fmt.Errorf("%w: channels=%d rate=%d", errUnsupportedFmt, channels, sampleRate)
			}
			haveFmt = true
		case "data":
			data = wav[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return nil, errUnsupportedFmt
	}
	if data == nil {
		return nil, errNoDataChunk
	}

	samples := pcmToFloat32Mono(data, channels)
	return resample(samples, sampleRate, targetSampleRate), nil
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame. If channels is 1 this is equivalent to
// pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample converts samples from one rate to another by linear
// interpolation. Good enough for speech recognition input; upstream
// normalization produces 16 kHz already, so this is a fallback path.
func resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}
	n := int(float64(len(samples)) * float64(to) / float64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	for i := range n {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
