// Package worker refines synthetic track features in the background by
// analyzing preview clips.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/ports"
	"github.com/ewilliams-labs/persona/internal/metrics"
)

// Job is one preview analysis request.
type Job struct {
	TrackID    string
	PreviewURL string
}

// Pool runs preview analysis jobs off the request path.
type Pool struct {
	repo    ports.TrackRepository
	jobs    chan Job
	wg      sync.WaitGroup
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with a bounded queue. Call Start to launch workers.
func NewPool(repo ports.TrackRepository, queueSize int, logger zerolog.Logger) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		repo:    repo,
		jobs:    make(chan Job, queueSize),
		logger:  logger.With().Str("component", "worker").Logger(),
		timeout: 30 * time.Second,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.processJob(job)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is stopped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		metrics.AnalyzerJobs.WithLabelValues("dropped").Inc()
		p.logger.Warn().Str("track_id", job.TrackID).Msg("queue full, dropping analysis job")
		return false
	}
}

// Enqueue implements ports.AnalysisQueue.
func (p *Pool) Enqueue(trackID, previewURL string) bool {
	return p.Submit(Job{TrackID: trackID, PreviewURL: previewURL})
}

func (p *Pool) processJob(job Job) {
	if job.PreviewURL == "" {
		p.logger.Debug().Str("track_id", job.TrackID).Msg("no preview url, skipping analysis")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	track, err := p.repo.GetTrack(ctx, job.TrackID)
	if err != nil {
		metrics.AnalyzerJobs.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("track_id", job.TrackID).Msg("load track for analysis")
		return
	}
	if track.FeatureSource == domain.SourceCatalog {
		return
	}

	start := time.Now()
	a, err := AnalyzePreviewFunc(ctx, job.PreviewURL)
	metrics.AnalyzerDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalyzerJobs.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("track_id", job.TrackID).Msg("preview analysis failed")
		return
	}

	features := track.Features
	features.Energy = a.Energy
	features.Loudness = a.Loudness
	if err := p.repo.UpdateTrackFeatures(ctx, job.TrackID, features, domain.SourcePreview); err != nil {
		metrics.AnalyzerJobs.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("track_id", job.TrackID).Msg("store analyzed features")
		return
	}

	metrics.AnalyzerJobs.WithLabelValues("ok").Inc()
	p.logger.Info().
		Str("track_id", job.TrackID).
		Float64("energy", a.Energy).
		Float64("loudness_db", a.Loudness).
		Msg("refined features from preview")
}
