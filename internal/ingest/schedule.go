package ingest

import (
	"context"
	"fmt"

	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Scheduler runs ingestion on a cron schedule. A run still in progress when
// the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

func NewScheduler(expr string, d *gorm.DB, f Fetcher) (*Scheduler, error) {
	logger := cronLogger{logging.Component("cron")}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, lifeCtx: lifeCtx, lifeCancel: lifeCancel}

	id, err := c.AddFunc(expr, func() {
		if _, err := Run(s.lifeCtx, d, f); err != nil {
			l := logging.Component("ingest")
			l.Error().Err(err).Msg("scheduled ingestion failed")
		}
	})
	if err != nil {
		lifeCancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	s.entryID = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	l := logging.Component("ingest")
	l.Info().Time("next", s.cron.Entry(s.entryID).Next).Msg("Ingestion scheduled")
}

// RunNow triggers the scheduled job immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	s.cron.Entry(s.entryID).WrappedJob.Run()
}

// Stop cancels any run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.lifeCancel()
	<-s.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
