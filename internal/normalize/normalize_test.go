package normalize

import (
	"context"
	"encoding/binary"
	"errors"
	"os/exec"
	"slices"
	"testing"
)

// wavFixture builds a one-second 8 kHz mono WAV of silence, enough for
// ffmpeg to treat as real input.
func wavFixture(t *testing.T) []byte {
	t.Helper()
	const rate = 8000
	pcm := make([]byte, rate*2)

	var b []byte
	put16 := func(v int) { b = binary.LittleEndian.AppendUint16(b, uint16(v)) }
	put32 := func(v int) { b = binary.LittleEndian.AppendUint32(b, uint32(v)) }

	b = append(b, "RIFF"...)
	put32(36 + len(pcm))
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	put32(16)
	put16(1)
	put16(1)
	put32(rate)
	put32(rate * 2)
	put16(2)
	put16(16)
	b = append(b, "data"...)
	put32(len(pcm))
	return append(b, pcm...)
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

func TestNormalize(t *testing.T) {
	t.Run("missing binary reports ErrFFmpegNotFound", func(t *testing.T) {
		f := New(WithBinary("definitely-not-ffmpeg"))
		_, err := f.Normalize(context.Background(), []byte{1, 2, 3})
		if !errors.Is(err, ErrFFmpegNotFound) {
			t.Errorf("err = %v, want ErrFFmpegNotFound", err)
		}
		if f.Available() {
			t.Error("Available() = true for bogus binary")
		}
	})

	t.Run("converts to 16kHz mono WAV", func(t *testing.T) {
		requireFFmpeg(t)
		f := New()

		out, err := f.Normalize(context.Background(), wavFixture(t))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if len(out) < 44 || string(out[0:4]) != "RIFF" {
			t.Fatal("output is not a RIFF file")
		}
		rate := binary.LittleEndian.Uint32(out[24:28])
		channels := binary.LittleEndian.Uint16(out[22:24])
		if rate != 16000 || channels != 1 {
			t.Errorf("got rate=%d channels=%d, want 16000/1", rate, channels)
		}
	})

	t.Run("garbage input fails", func(t *testing.T) {
		requireFFmpeg(t)
		f := New()
		if _, err := f.Normalize(context.Background(), []byte("not audio at all")); err == nil {
			t.Error("expected error for non-audio input")
		}
	})
}

func TestDuration(t *testing.T) {
	requireFFmpeg(t)
	f := New()

	secs, err := f.Duration(context.Background(), wavFixture(t))
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if secs < 0.9 || secs > 1.1 {
		t.Errorf("duration = %.3fs, want ~1s", secs)
	}
}

func TestSplit(t *testing.T) {
	t.Run("rejects non-positive segment length", func(t *testing.T) {
		f := New()
		if _, err := f.Split(context.Background(), []byte{1}, 0); err == nil {
			t.Error("expected error for zero segment length")
		}
	})

	t.Run("splits with remainder", func(t *testing.T) {
		requireFFmpeg(t)
		f := New()

		segments, err := f.Split(context.Background(), wavFixture(t), 0.4)
		if err != nil {
			t.Fatalf("Split: %v", err)
		}
		if len(segments) != 3 {
			t.Fatalf("got %d segments, want 3", len(segments))
		}
		// 0.4 + 0.4 + ~0.2 remainder.
		if segments[2].DurationSeconds > 0.3 {
			t.Errorf("last segment = %.3fs, want remainder under 0.3s", segments[2].DurationSeconds)
		}
		for i, seg := range segments {
			if len(seg.Audio) < 44 || string(seg.Audio[0:4]) != "RIFF" {
				t.Errorf("segment %d is not a RIFF file", i)
			}
		}
	})
}

func TestArgBuilders(t *testing.T) {
	t.Run("normalize targets 16kHz mono pcm", func(t *testing.T) {
		args := normalizeArgs()
		for _, want := range [][]string{{"-ar", "16000"}, {"-ac", "1"}, {"-c:a", "pcm_s16le"}} {
			i := slices.Index(args, want[0])
			if i < 0 || args[i+1] != want[1] {
				t.Errorf("args missing %v: %v", want, args)
			}
		}
	})

	t.Run("extract seeks before input", func(t *testing.T) {
		args := extractArgs("/tmp/in", 30, 15)
		ss := slices.Index(args, "-ss")
		in := slices.Index(args, "-i")
		if ss < 0 || in < 0 || ss > in {
			t.Errorf("-ss must precede -i: %v", args)
		}
		if args[ss+1] != "30.000" {
			t.Errorf("offset = %q, want 30.000", args[ss+1])
		}
	})
}
