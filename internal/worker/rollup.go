package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// startRollupJob schedules the nightly trend rollup. An invalid schedule
// disables the job rather than failing startup; trends fall back to live
// aggregation.
func (s *Service) startRollupJob() {
	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(s.config.RollupSchedule, func() {
		s.runDailyRollup(time.Now().UTC().AddDate(0, 0, -1))
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", s.config.RollupSchedule).Msg("Invalid rollup schedule, job disabled")
		s.scheduler = nil
		return
	}
	s.scheduler.Start()
	log.Info().Str("schedule", s.config.RollupSchedule).Msg("Rollup job scheduled")
}

// runDailyRollup aggregates every user's records for one day into the
// rollup table. Safe to re-run for the same day.
func (s *Service) runDailyRollup(day time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	totals, err := s.footprints.TotalsForDay(ctx, day)
	if err != nil {
		log.Error().Err(err).Msg("Rollup aggregation failed")
		return
	}

	var failed int
	for uid, total := range totals {
		if err := s.rollups.UpsertDay(ctx, uid, day, total.CO2eKg, total.ItemCount); err != nil {
			log.Error().Err(err).Str("userId", uid).Msg("Rollup upsert failed")
			failed++
		}
	}

	log.Info().
		Str("day", day.Format("2006-01-02")).
		Int("users", len(totals)).
		Int("failed", failed).
		Msg("Daily rollup complete")
}
