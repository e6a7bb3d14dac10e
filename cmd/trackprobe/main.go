// Command trackprobe analyzes a WAV file and reports tempo, key, and level
// statistics.
//
// Usage:
//
//	trackprobe [flags] file.wav
//
// Examples:
//
//	trackprobe song.wav
//	trackprobe -skip-tempo ambient.wav
//	trackprobe -max-seconds 60 long-set.wav
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-rack/analysis"
	"github.com/cwbudde/algo-rack/dsp/core"
)

func main() {
	skipTempo := flag.Bool("skip-tempo", false, "skip tempo estimation")
	skipKey := flag.Bool("skip-key", false, "skip key detection")
	maxSeconds := flag.Float64("max-seconds", 0, "analyze at most this many seconds (0 = whole file)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: trackprobe [flags] file.wav\n\n")
		fmt.Fprintf(os.Stderr, "Analyzes a WAV file and reports tempo, key, and level statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  trackprobe song.wav\n")
		fmt.Fprintf(os.Stderr, "  trackprobe -max-seconds 60 long-set.wav\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	track, err := loadWAV(path, *maxSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printReport(path, track, *skipTempo, *skipKey)
}

// track holds a decoded mono mixdown plus the source format.
type track struct {
	samples  []float64
	rate     float64
	channels int
	bitDepth int
}

// loadWAV decodes a WAV file into a mono float mixdown. A positive
// maxSeconds truncates the decoded audio.
func loadWAV(path string, maxSeconds float64) (*track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("no channels in %s", path)
	}
	bitDepth := int(decoder.BitDepth)
	scale, err := pcmScale(bitDepth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	samples := mixdown(buf, scale, maxSeconds)

	return &track{
		samples:  samples,
		rate:     float64(buf.Format.SampleRate),
		channels: buf.Format.NumChannels,
		bitDepth: bitDepth,
	}, nil
}

// pcmScale returns the factor that maps integer PCM samples of the given bit
// depth onto [-1, 1]. Depths outside the WAV range are rejected rather than
// trusted from the header.
func pcmScale(bitDepth int) (float64, error) {
	if bitDepth < 8 || bitDepth > 32 {
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	return 1 / float64(int64(1)<<(bitDepth-1)), nil
}

// mixdown averages the interleaved channels of a PCM buffer into a mono
// float slice scaled to [-1, 1]. A positive maxSeconds truncates the result.
func mixdown(buf *audio.IntBuffer, scale, maxSeconds float64) []float64 {
	channels := buf.Format.NumChannels

	frames := len(buf.Data) / channels
	if maxSeconds > 0 {
		if limit := int(maxSeconds * float64(buf.Format.SampleRate)); limit < frames {
			frames = limit
		}
	}

	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) * scale
		}
		samples[i] = sum / float64(channels)
	}

	return samples
}

// levelStats computes whole-file peak and RMS in dBFS.
func levelStats(samples []float64) (peakDB, rmsDB float64) {
	peak := 0.0
	sum := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}
	rms := 0.0
	if len(samples) > 0 {
		rms = math.Sqrt(sum / float64(len(samples)))
	}
	return core.LevelToDB(peak), core.LevelToDB(rms)
}

func printReport(path string, tr *track, skipTempo, skipKey bool) {
	peakDB, rmsDB := levelStats(tr.samples)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\t%s\n", path)
	fmt.Fprintf(tw, "Format\t%.0f Hz, %d ch, %d-bit\n", tr.rate, tr.channels, tr.bitDepth)
	fmt.Fprintf(tw, "Duration\t%.1f s\n", float64(len(tr.samples))/tr.rate)
	fmt.Fprintf(tw, "Peak\t%.1f dBFS\n", peakDB)
	fmt.Fprintf(tw, "RMS\t%.1f dBFS\n", rmsDB)

	if !skipTempo {
		switch tempo, err := analysis.Tempo(tr.samples, tr.rate); {
		case err == nil:
			fmt.Fprintf(tw, "Tempo\t%.1f BPM (confidence %.2f)\n", tempo.BPM, tempo.Confidence)
		case errors.Is(err, analysis.ErrShortInput), errors.Is(err, analysis.ErrNoSignal):
			fmt.Fprintf(tw, "Tempo\tn/a (%v)\n", err)
		default:
			fmt.Fprintf(tw, "Tempo\terror: %v\n", err)
		}
	}

	if !skipKey {
		switch key, err := analysis.Key(tr.samples, tr.rate); {
		case err == nil:
			fmt.Fprintf(tw, "Key\t%s (correlation %.2f)\n", key, key.Correlation)
		case errors.Is(err, analysis.ErrShortInput), errors.Is(err, analysis.ErrNoSignal):
			fmt.Fprintf(tw, "Key\tn/a (%v)\n", err)
		default:
			fmt.Fprintf(tw, "Key\terror: %v\n", err)
		}
	}

	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}
