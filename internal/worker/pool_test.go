package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	tracks  map[string]domain.Track
	updated map[string]domain.AudioFeatures
	sources map[string]domain.FeatureSource
	done    chan string
}

func newFakeRepo(tracks ...domain.Track) *fakeRepo {
	r := &fakeRepo{
		tracks:  map[string]domain.Track{},
		updated: map[string]domain.AudioFeatures{},
		sources: map[string]domain.FeatureSource{},
		done:    make(chan string, 10),
	}
	for _, t := range tracks {
		r.tracks[t.ID] = t
	}
	return r
}

func (r *fakeRepo) SaveTracks(context.Context, []domain.Track) error { return nil }

func (r *fakeRepo) GetTrack(_ context.Context, id string) (domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return domain.Track{}, domain.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) CachedBatch(context.Context, string, time.Duration) ([]domain.Track, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) SaveBatch(context.Context, string, []domain.Track) error { return nil }

func (r *fakeRepo) UpdateTrackFeatures(_ context.Context, id string, f domain.AudioFeatures, src domain.FeatureSource) error {
	r.mu.Lock()
	r.updated[id] = f
	r.sources[id] = src
	r.mu.Unlock()
	r.done <- id
	return nil
}

func stubAnalyzer(t *testing.T, fn func(context.Context, string) (Analysis, error)) {
	t.Helper()
	orig := AnalyzePreviewFunc
	AnalyzePreviewFunc = fn
	t.Cleanup(func() { AnalyzePreviewFunc = orig })
}

func TestPool_RefinesSyntheticFeatures(t *testing.T) {
	stubAnalyzer(t, func(_ context.Context, url string) (Analysis, error) {
		if url != "http://preview/t1.mp3" {
			return Analysis{}, errors.New("unexpected url")
		}
		return Analysis{Energy: 0.8, Loudness: -7}, nil
	})

	repo := newFakeRepo(domain.Track{
		ID:            "t1",
		Features:      domain.AudioFeatures{Danceability: 0.4, Energy: 0.2, Loudness: -20, Tempo: 110},
		FeatureSource: domain.SourceSynthetic,
	})
	pool := NewPool(repo, 4, zerolog.Nop())
	pool.Start(1)

	if !pool.Enqueue("t1", "http://preview/t1.mp3") {
		t.Fatalf("enqueue rejected")
	}

	select {
	case <-repo.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job not processed")
	}
	pool.Stop()

	got := repo.updated["t1"]
	if got.Energy != 0.8 || got.Loudness != -7 {
		t.Fatalf("analysis not applied: %+v", got)
	}
	if got.Danceability != 0.4 || got.Tempo != 110 {
		t.Fatalf("other descriptors must be preserved: %+v", got)
	}
	if repo.sources["t1"] != domain.SourcePreview {
		t.Fatalf("source: got %q", repo.sources["t1"])
	}
}

func TestPool_SkipsCatalogTracksAndFailures(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	stubAnalyzer(t, func(context.Context, string) (Analysis, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return Analysis{}, errors.New("decode failed")
	})

	repo := newFakeRepo(
		domain.Track{ID: "cat", FeatureSource: domain.SourceCatalog},
		domain.Track{ID: "syn", FeatureSource: domain.SourceSynthetic},
	)
	pool := NewPool(repo, 4, zerolog.Nop())
	pool.Start(1)
	pool.Enqueue("cat", "http://preview/cat.mp3")
	pool.Enqueue("syn", "http://preview/syn.mp3")
	pool.Enqueue("missing", "http://preview/x.mp3")
	pool.Enqueue("nourl", "")
	pool.Stop()

	if len(repo.updated) != 0 {
		t.Fatalf("no update expected, got %v", repo.updated)
	}
	if calls != 1 {
		t.Fatalf("analyzer should run only for the synthetic track, ran %d times", calls)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(newFakeRepo(), 1, zerolog.Nop())
	pool.Start(1)
	pool.Stop()
	pool.Stop()
	if pool.Submit(Job{TrackID: "late"}) {
		t.Fatalf("submit after stop should be rejected")
	}
}

func TestPool_DropsWhenFull(t *testing.T) {
	pool := NewPool(newFakeRepo(), 1, zerolog.Nop())
	if !pool.Submit(Job{TrackID: "a"}) {
		t.Fatalf("first submit should fit")
	}
	if pool.Submit(Job{TrackID: "b"}) {
		t.Fatalf("second submit should be dropped")
	}
	pool.Start(1)
	pool.Stop()
}

func pcm(samples ...int16) *bytes.Reader {
	var buf bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, s)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestAnalyzePCM(t *testing.T) {
	tests := []struct {
		name         string
		samples      []int16
		wantEnergy   float64
		wantLoudness float64
		oneByteReads bool
		wantErr      bool
	}{
		{name: "empty", wantErr: true},
		{name: "samples split across reads", samples: []int16{16384, -16384, 16384}, oneByteReads: true, wantEnergy: 0.5, wantLoudness: 20 * math.Log10(0.5)},
		{name: "silence", samples: []int16{0, 0, 0, 0}, wantEnergy: 0, wantLoudness: -60},
		{name: "half scale", samples: []int16{16384, -16384}, wantEnergy: 0.5, wantLoudness: 20 * math.Log10(0.5)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r io.Reader = pcm(tc.samples...)
			if tc.oneByteReads {
				r = iotest.OneByteReader(r)
			}
			got, err := analyzePCM(r)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if math.Abs(got.Energy-tc.wantEnergy) > 1e-9 || math.Abs(got.Loudness-tc.wantLoudness) > 1e-9 {
				t.Fatalf("got %+v, want energy %v loudness %v", got, tc.wantEnergy, tc.wantLoudness)
			}
		})
	}
}
