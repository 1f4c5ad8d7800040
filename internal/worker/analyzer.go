package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Analysis is what a preview clip tells us about a track.
type Analysis struct {
	// Energy is the RMS amplitude normalized to [0,1].
	Energy float64
	// Loudness is the RMS level in dBFS, floored at -60.
	Loudness float64
}

const loudnessFloor = -60.0

var previewClient = &http.Client{Timeout: 15 * time.Second}

func analyzePreview(ctx context.Context, url string) (Analysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Analysis{}, fmt.Errorf("worker: build preview request: %w", err)
	}
	// #nosec G107 -- URL is a preview URL from the catalog API response
	resp, err := previewClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("worker: preview fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Analysis{}, fmt.Errorf("worker: preview fetch status %d", resp.StatusCode)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return Analysis{}, fmt.Errorf("worker: preview decode failed: %w", err)
	}
	return analyzePCM(decoder)
}

// analyzePCM reads 16-bit little-endian samples until EOF. A sample split
// across two reads is joined; a lone trailing byte is ignored.
func analyzePCM(r io.Reader) (Analysis, error) {
	buf := make([]byte, 4096)
	var (
		sumSquares, count float64
		pending           int
	)

	for {
		n, err := r.Read(buf[pending:])
		n += pending
		whole := n &^ 1
		for i := 0; i < whole; i += 2 {
			sample := float64(int16(buf[i]) | int16(buf[i+1])<<8)
			sumSquares += sample * sample
			count++
		}
		pending = n - whole
		if pending == 1 {
			buf[0] = buf[whole]
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Analysis{}, fmt.Errorf("worker: preview read failed: %w", err)
		}
	}

	if count == 0 {
		return Analysis{}, errors.New("worker: preview contains no samples")
	}

	rms := math.Sqrt(sumSquares/count) / 32768.0
	energy := math.Min(math.Max(rms, 0), 1)

	loudness := loudnessFloor
	if rms > 0 {
		loudness = math.Max(20*math.Log10(rms), loudnessFloor)
	}
	loudness = math.Min(loudness, 0)

	return Analysis{Energy: energy, Loudness: loudness}, nil
}

// AnalyzePreviewFunc allows tests to override the analyzer implementation.
var AnalyzePreviewFunc = analyzePreview
