package worker

import (
	"context"
	"time"

	"closet_server/core/port/out"
	"closet_server/core/service/color"

	"github.com/rs/zerolog"
)

const (
	defaultSweepInterval  = 15 * time.Minute
	defaultSweepBatchSize = 100
	defaultSweepUserLimit = 50
)

// ColorSweepScheduler periodically retags wardrobe records that were
// stored without a resolvable color. AI extraction sometimes returns
// color names the palette only learns later, so the sweep gives those
// records another pass.
type ColorSweepScheduler struct {
	wardrobe  out.WardrobeRepository
	tagger    *color.Tagger
	interval  time.Duration
	batchSize int
	userLimit int
	ctx       context.Context
	cancel    context.CancelFunc
	zlog      zerolog.Logger
}

func NewColorSweepScheduler(wardrobe out.WardrobeRepository, tagger *color.Tagger, zlog zerolog.Logger) *ColorSweepScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ColorSweepScheduler{
		wardrobe:  wardrobe,
		tagger:    tagger,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatchSize,
		userLimit: defaultSweepUserLimit,
		ctx:       ctx,
		cancel:    cancel,
		zlog:      zlog.With().Str("component", "color_sweep").Logger(),
	}
}

// Start launches the sweep loop.
func (s *ColorSweepScheduler) Start() {
	s.zlog.Info().Dur("interval", s.interval).Msg("Starting color sweep scheduler")
	go s.run()
}

// Stop stops the sweep loop.
func (s *ColorSweepScheduler) Stop() {
	s.zlog.Info().Msg("Stopping color sweep scheduler")
	s.cancel()
}

func (s *ColorSweepScheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce()

	for {
		select {
		case <-s.ctx.Done():
			s.zlog.Info().Msg("Color sweep scheduler stopped")
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *ColorSweepScheduler) sweepOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	userIDs, err := s.wardrobe.ListUsersWithUntagged(ctx, s.userLimit)
	if err != nil {
		s.zlog.Error().Err(err).Msg("Failed to list users with untagged records")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	total := 0
	for _, userID := range userIDs {
		tagged, err := s.tagger.Sweep(ctx, userID, s.batchSize)
		if err != nil {
			s.zlog.Error().Err(err).Str("user_id", userID).Msg("Color sweep failed")
			continue
		}
		total += tagged
	}

	if total > 0 {
		s.zlog.Info().Int("users", len(userIDs)).Int("tagged", total).Msg("Color sweep completed")
	}
}

// SetInterval overrides the sweep interval (for testing).
func (s *ColorSweepScheduler) SetInterval(interval time.Duration) {
	s.interval = interval
}
