package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/engine"
	"github.com/ewilliams-labs/persona/internal/core/ports"
	"github.com/ewilliams-labs/persona/internal/metrics"
)

// ErrIntentUnavailable is returned by IntentNext when no compiler is wired
// or the compiler failed.
var ErrIntentUnavailable = errors.New("service: intent compiler unavailable")

// Options tunes catalog paging and result sizes.
type Options struct {
	// DiscoveryGenres build the candidate pool when the caller gives no
	// query. DefaultQuery is searched instead when the list is empty.
	DiscoveryGenres []string
	DefaultQuery    string
	BatchSize       int
	CacheTTL        time.Duration
	// MaxPageScan bounds how many pages one call reads past an exhausted one.
	MaxPageScan int
	MaxRanked   int
	// HistoryLimit is the default and maximum page size of History.
	HistoryLimit int
}

// Deps are the driven adapters. Intents and Analysis may be nil.
type Deps struct {
	Catalog  ports.CatalogProvider
	States   ports.StateStore
	Feedback ports.FeedbackLog
	Tracks   ports.TrackRepository
	Intents  ports.IntentCompiler
	Analysis ports.AnalysisQueue
}

// Recommendation is a track with its like probability.
type Recommendation struct {
	Track domain.Track `json:"track"`
	Score float64      `json:"score"`
}

// IntentResult pairs the compiled intent with the best match for it.
type IntentResult struct {
	Intent         domain.Intent  `json:"intent"`
	Query          string         `json:"query"`
	Recommendation Recommendation `json:"recommendation"`
}

// Stats summarizes a user's session.
type Stats struct {
	UserID         string    `json:"user_id"`
	Initialized    bool      `json:"initialized"`
	Likes          int64     `json:"likes"`
	Dislikes       int64     `json:"dislikes"`
	Skips          int64     `json:"skips"`
	TotalFeedback  int64     `json:"total_feedback"`
	Rated          int       `json:"rated"`
	ModelSteps     int64     `json:"model_steps"`
	BootstrappedAt time.Time `json:"bootstrapped_at,omitempty"`
}

// Recommender coordinates the engine with the catalog and persistence.
// Each user's operations are serialized by that user's session lock.
type Recommender struct {
	engine *engine.Engine
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	sessions map[string]*engine.Session
}

// NewRecommender constructs a Recommender.
func NewRecommender(eng *engine.Engine, deps Deps, opts Options, logger zerolog.Logger) *Recommender {
	if opts.DefaultQuery == "" {
		opts.DefaultQuery = "popular"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxPageScan <= 0 {
		opts.MaxPageScan = 10
	}
	if opts.MaxRanked <= 0 {
		opts.MaxRanked = 10
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Recommender{
		engine:   eng,
		deps:     deps,
		opts:     opts,
		logger:   logger.With().Str("component", "recommender").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*engine.Session),
	}
}

// Next returns the single best unrated track for query.
func (r *Recommender) Next(ctx context.Context, userID, query string) (Recommendation, error) {
	recs, err := r.ranked(ctx, userID, query, "", 1)
	if err != nil {
		return Recommendation{}, err
	}
	metrics.RecommendationsServed.WithLabelValues("next").Inc()
	metrics.RecommendationScore.Observe(recs[0].Score)
	return recs[0], nil
}

// Recommendations returns up to k tracks ordered by score. k is clamped to
// the configured maximum; k <= 0 means the maximum.
func (r *Recommender) Recommendations(ctx context.Context, userID, query string, k int) ([]Recommendation, error) {
	if k <= 0 || k > r.opts.MaxRanked {
		k = r.opts.MaxRanked
	}
	recs, err := r.ranked(ctx, userID, query, "", k)
	if err != nil {
		return nil, err
	}
	metrics.RecommendationsServed.WithLabelValues("ranked").Inc()
	return recs, nil
}

// IntentNext compiles message into a catalog query and recommends from it.
func (r *Recommender) IntentNext(ctx context.Context, userID, message string) (IntentResult, error) {
	if r.deps.Intents == nil {
		return IntentResult{}, ErrIntentUnavailable
	}
	intent, err := r.deps.Intents.AnalyzeIntent(ctx, message)
	if err != nil {
		return IntentResult{}, fmt.Errorf("service: failed to analyze intent: %w: %w", ErrIntentUnavailable, err)
	}

	query := intent.SearchQuery()
	recs, err := r.ranked(ctx, userID, query, intent.SeedArtist(), 1)
	if err != nil {
		return IntentResult{}, err
	}
	metrics.RecommendationsServed.WithLabelValues("intent").Inc()
	return IntentResult{Intent: intent, Query: query, Recommendation: recs[0]}, nil
}

// Explain scores one known track for the user without changing any state.
func (r *Recommender) Explain(ctx context.Context, userID, trackID string) (Recommendation, error) {
	track, err := r.track(ctx, trackID)
	if err != nil {
		return Recommendation{}, err
	}
	s, err := r.session(userID)
	if err != nil {
		return Recommendation{}, err
	}
	s.Lock()
	defer s.Unlock()
	if err := r.ensureReady(ctx, s); err != nil {
		return Recommendation{}, err
	}
	p, err := r.engine.Score(s, track.Features.Vector())
	if err != nil {
		return Recommendation{}, fmt.Errorf("service: failed to score track: %w", err)
	}
	return Recommendation{Track: track, Score: p}, nil
}

// Feedback records a like or dislike for a track previously served from the
// catalog. The engine state and its persisted copy change together or not at all.
func (r *Recommender) Feedback(ctx context.Context, userID, trackID string, label domain.Label) (domain.FeedbackEvent, error) {
	track, err := r.track(ctx, trackID)
	if err != nil {
		return domain.FeedbackEvent{}, err
	}
	s, err := r.session(userID)
	if err != nil {
		return domain.FeedbackEvent{}, err
	}
	s.Lock()
	defer s.Unlock()
	if err := r.ensureReady(ctx, s); err != nil {
		return domain.FeedbackEvent{}, err
	}

	x := track.Features.Vector()
	before := s.Snapshot()
	if err := r.engine.SubmitFeedback(s, trackID, x, label); err != nil {
		if errors.Is(err, domain.ErrDuplicateFeedback) {
			metrics.DuplicateFeedback.Inc()
		}
		return domain.FeedbackEvent{}, err
	}
	if err := r.deps.States.Save(ctx, userID, s.Snapshot()); err != nil {
		s.Reset(before, engine.Ready)
		return domain.FeedbackEvent{}, fmt.Errorf("service: failed to save state: %w", err)
	}

	ev := domain.FeedbackEvent{
		ID:        r.newID(),
		UserID:    userID,
		TrackID:   trackID,
		Label:     label,
		Features:  x,
		CreatedAt: r.now().UTC(),
	}
	if err := r.deps.Feedback.Append(ctx, ev); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Str("track_id", trackID).Msg("feedback applied but not logged")
	}

	metrics.FeedbackTotal.WithLabelValues(label.String()).Inc()
	r.logger.Info().
		Str("user_id", userID).
		Str("track_id", trackID).
		Stringer("label", label).
		Msg("feedback applied")
	return ev, nil
}

// Skip excludes a track from future recommendations without learning from it.
func (r *Recommender) Skip(ctx context.Context, userID, trackID string) error {
	if trackID == "" {
		return domain.ErrEmptyTrackID
	}
	s, err := r.session(userID)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	if err := r.ensureReady(ctx, s); err != nil {
		return err
	}

	before := s.Snapshot()
	if before.Rated.Has(trackID) {
		return nil
	}
	if err := r.engine.Skip(s, trackID); err != nil {
		return err
	}
	if err := r.deps.States.Save(ctx, userID, s.Snapshot()); err != nil {
		s.Reset(before, engine.Ready)
		return fmt.Errorf("service: failed to save state: %w", err)
	}
	metrics.SkipsTotal.Inc()
	return nil
}

// Stats reports the user's feedback counts. It bootstraps the user if needed.
func (r *Recommender) Stats(ctx context.Context, userID string) (Stats, error) {
	s, err := r.session(userID)
	if err != nil {
		return Stats{}, err
	}
	s.Lock()
	defer s.Unlock()
	if err := r.ensureReady(ctx, s); err != nil {
		return Stats{}, err
	}

	st := s.Snapshot()
	return Stats{
		UserID:         userID,
		Initialized:    s.Status() == engine.Ready,
		Likes:          st.Stats.Likes,
		Dislikes:       st.Stats.Dislikes,
		Skips:          st.Stats.Skips,
		TotalFeedback:  st.Stats.Total(),
		Rated:          st.Rated.Len(),
		ModelSteps:     st.Model.Iterations,
		BootstrappedAt: st.BootstrappedAt,
	}, nil
}

// History returns the most recent feedback events, newest first.
func (r *Recommender) History(ctx context.Context, userID string, limit int) ([]domain.FeedbackEvent, error) {
	if userID == "" {
		return nil, domain.ErrEmptyUserID
	}
	if limit <= 0 || limit > r.opts.HistoryLimit {
		limit = r.opts.HistoryLimit
	}
	events, err := r.deps.Feedback.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load history: %w", err)
	}
	return events, nil
}

// ranked is the shared path of Next, Recommendations and IntentNext. It
// starts at the page the user last reached for this query and, while a page
// has nothing unrated, reads further pages until one does, the catalog runs
// dry or MaxPageScan pages were read. The last non-empty page reached is
// persisted so a later call resumes there.
func (r *Recommender) ranked(ctx context.Context, userID, query, artist string, k int) ([]Recommendation, error) {
	s, err := r.session(userID)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	if err := r.ensureReady(ctx, s); err != nil {
		return nil, err
	}

	cq := r.candidateQuery(query, artist)
	key := cursorKey(cq)
	saved := s.Cursor(key)
	start := saved

	tracks, err := r.batch(ctx, cq, start, false)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 && start > 0 {
		// The result set shrank below the saved page.
		start = 0
		if tracks, err = r.batch(ctx, cq, start, false); err != nil {
			return nil, err
		}
	}
	page, reached := start, start
	ranked, err := r.engine.RankAll(s, domain.Candidates(tracks), k)
	for errors.Is(err, domain.ErrNoCandidates) && len(tracks) > 0 && page-start < r.opts.MaxPageScan {
		page++
		r.logger.Debug().Str("user_id", userID).Str("cursor", key).Int("page", page).Msg("batch exhausted, fetching next page")
		tracks, err = r.batch(ctx, cq, page, true)
		if err != nil {
			return nil, err
		}
		if len(tracks) > 0 {
			reached = page
		}
		ranked, err = r.engine.RankAll(s, domain.Candidates(tracks), k)
	}
	if reached != saved {
		r.advanceCursor(ctx, s, key, reached)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(ranked))
	for _, rk := range ranked {
		out = append(out, Recommendation{Track: tracks[rk.Position], Score: rk.Score})
	}
	return out, nil
}

// advanceCursor records the page reached. A failed save keeps the cursor in
// memory; the next restart rescans from the last persisted page.
func (r *Recommender) advanceCursor(ctx context.Context, s *engine.Session, key string, page int) {
	s.SetCursor(key, page)
	if err := r.deps.States.Save(ctx, s.UserID(), s.Snapshot()); err != nil {
		r.logger.Warn().Err(err).Str("user_id", s.UserID()).Str("cursor", key).Msg("catalog cursor not persisted")
	}
}

// batch returns one catalog page, from the cache unless fresh is set.
func (r *Recommender) batch(ctx context.Context, cq ports.CandidateQuery, page int, fresh bool) ([]domain.Track, error) {
	cq.Offset = page * cq.Limit
	key := fmt.Sprintf("%s|%d", cursorKey(cq), cq.Offset)

	if !fresh && r.opts.CacheTTL > 0 {
		cached, err := r.deps.Tracks.CachedBatch(ctx, key, r.opts.CacheTTL)
		switch {
		case err == nil && len(cached) > 0:
			metrics.CatalogCache.WithLabelValues("hit").Inc()
			return cached, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			r.logger.Warn().Err(err).Str("key", key).Msg("batch cache read failed")
		}
		metrics.CatalogCache.WithLabelValues("miss").Inc()
	}

	tracks, err := r.deps.Catalog.Candidates(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch candidates: %w", err)
	}

	if err := r.deps.Tracks.SaveTracks(ctx, tracks); err != nil {
		return nil, fmt.Errorf("service: failed to cache tracks: %w", err)
	}
	if err := r.deps.Tracks.SaveBatch(ctx, key, tracks); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("batch cache write failed")
	}

	if r.deps.Analysis != nil {
		for _, t := range tracks {
			if t.FeatureSource == domain.SourceSynthetic && t.PreviewURL != "" {
				r.deps.Analysis.Enqueue(t.ID, t.PreviewURL)
			}
		}
	}
	return tracks, nil
}

// candidateQuery maps caller input to a catalog query. Without a query or an
// artist the discovery genres apply, or DefaultQuery when none are set.
func (r *Recommender) candidateQuery(query, artist string) ports.CandidateQuery {
	cq := ports.CandidateQuery{
		Query:  strings.Join(strings.Fields(query), " "),
		Artist: strings.TrimSpace(artist),
		Limit:  r.opts.BatchSize,
	}
	if cq.Query == "" && cq.Artist == "" {
		if len(r.opts.DiscoveryGenres) > 0 {
			cq.Genres = r.opts.DiscoveryGenres
		} else {
			cq.Query = r.opts.DefaultQuery
		}
	}
	return cq
}

// cursorKey identifies a candidate query across restarts.
func cursorKey(cq ports.CandidateQuery) string {
	if len(cq.Genres) > 0 {
		return "discover|" + strings.ToLower(strings.Join(cq.Genres, ","))
	}
	return strings.ToLower(cq.Query + "|" + cq.Artist)
}

// ensureReady loads or bootstraps the session. Caller holds the session lock.
func (r *Recommender) ensureReady(ctx context.Context, s *engine.Session) error {
	if s.Status() == engine.Ready {
		return nil
	}

	st, err := r.deps.States.Load(ctx, s.UserID())
	switch {
	case err == nil:
		if err := s.Restore(st); err != nil {
			return fmt.Errorf("service: failed to restore state: %w", err)
		}
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("service: failed to load state: %w", err)
	}

	before := s.Snapshot()
	did, err := r.engine.InitializeIfAbsent(s)
	if err != nil {
		return fmt.Errorf("service: failed to bootstrap: %w", err)
	}
	if !did {
		return nil
	}
	if err := r.deps.States.Save(ctx, s.UserID(), s.Snapshot()); err != nil {
		s.Reset(before, engine.Uninitialized)
		return fmt.Errorf("service: failed to save bootstrap state: %w", err)
	}
	metrics.Bootstraps.Inc()
	r.logger.Info().Str("user_id", s.UserID()).Msg("initialized new user")
	return nil
}

func (r *Recommender) session(userID string) (*engine.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrEmptyUserID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s, nil
	}
	s := engine.NewSession(userID)
	r.sessions[userID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, nil
}

func (r *Recommender) track(ctx context.Context, trackID string) (domain.Track, error) {
	if trackID == "" {
		return domain.Track{}, domain.ErrEmptyTrackID
	}
	t, err := r.deps.Tracks.GetTrack(ctx, trackID)
	if err != nil {
		return domain.Track{}, fmt.Errorf("service: failed to load track %s: %w", trackID, err)
	}
	return t, nil
}
