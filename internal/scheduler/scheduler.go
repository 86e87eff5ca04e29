package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/clock"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/notification"
	postdomain "github.com/changespage/changespage/internal/post/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	RunInterval   time.Duration
	PublishBatch  int
	SweepInterval time.Duration
	JobRetention  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Minute
	}
	if c.PublishBatch <= 0 {
		c.PublishBatch = 50
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 24 * time.Hour
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 7 * 24 * time.Hour
	}
	return c
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	PostSvc    postdomain.Service
	Dispatcher *notification.Dispatcher
	Queue      jobsdomain.Queue
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	postSvc    postdomain.Service
	dispatcher *notification.Dispatcher
	queue      jobsdomain.Queue

	lastSweep time.Time
	lastPrune time.Time
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		postSvc:    p.PostSvc,
		dispatcher: p.Dispatcher,
		queue:      p.Queue,
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error

	err = errors.Join(err, s.PromotePublishLaterJob(ctx))

	now := s.clock.Now()
	if now.Sub(s.lastSweep) >= s.cfg.SweepInterval {
		if sweepErr := s.UsageSweepJob(ctx); sweepErr != nil {
			err = errors.Join(err, sweepErr)
		} else {
			s.lastSweep = now
		}
	}
	if now.Sub(s.lastPrune) >= s.cfg.SweepInterval {
		if pruneErr := s.PruneJobsJob(ctx); pruneErr != nil {
			err = errors.Join(err, pruneErr)
		} else {
			s.lastPrune = now
		}
	}

	return err
}

// PromotePublishLaterJob publishes due publish_later posts and pushes
// each through the notification dispatcher.
func (s *Scheduler) PromotePublishLaterJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		due, err := s.postSvc.ListDuePublishLater(ctx, now, s.cfg.PublishBatch)
		if err != nil {
			return fmt.Errorf("list due posts: %w", err)
		}
		if len(due) == 0 {
			return jobErr
		}

		published := 0
		for _, post := range due {
			if _, err := s.postSvc.Publish(ctx, post.ID); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Error("publish promotion failed",
					zap.String("post_id", post.ID.String()),
					zap.Error(err),
				)
				continue
			}
			published++
			if _, err := s.dispatcher.DispatchPublished(ctx, post.ID); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Error("promoted post dispatch failed",
					zap.String("post_id", post.ID.String()),
					zap.Error(err),
				)
			}
		}

		// Failed posts stay publish_later and would be refetched
		// forever; without progress the next tick retries instead.
		if published == 0 || len(due) < s.cfg.PublishBatch {
			return jobErr
		}
	}
}

// UsageSweepJob reconciles every billed account once per sweep window:
// a page-count report plus a subscription status refresh. The dedupe
// key dates each job so overlapping runs collapse.
func (s *Scheduler) UsageSweepJob(ctx context.Context) error {
	var accounts []billingdomain.BillingAccount
	err := s.db.WithContext(ctx).
		Where("stripe_subscription_id <> ''").
		Find(&accounts).Error
	if err != nil {
		return fmt.Errorf("list billing accounts: %w", err)
	}

	day := s.clock.Now().UTC().Format("2006-01-02")
	var jobErr error
	for _, account := range accounts {
		_, err := s.queue.Enqueue(ctx, jobsdomain.Request{
			Kind: jobsdomain.KindReportPageUsage,
			Payload: map[string]any{
				"user_id": account.UserID.String(),
			},
			DedupeKey: fmt.Sprintf("sweep:pages:%s:%s", account.UserID, day),
		})
		jobErr = errors.Join(jobErr, err)

		_, err = s.queue.Enqueue(ctx, jobsdomain.Request{
			Kind: jobsdomain.KindSubscriptionSync,
			Payload: map[string]any{
				"user_id": account.UserID.String(),
			},
			DedupeKey: fmt.Sprintf("sweep:sync:%s:%s", account.UserID, day),
		})
		jobErr = errors.Join(jobErr, err)
	}

	s.log.Info("usage sweep enqueued", zap.Int("accounts", len(accounts)))
	return jobErr
}

// PruneJobsJob trims finished queue rows past the retention window.
func (s *Scheduler) PruneJobsJob(ctx context.Context) error {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.JobRetention)
	result := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]jobsdomain.Status{jobsdomain.StatusDone, jobsdomain.StatusFailed},
			cutoff,
		).
		Delete(&jobsdomain.Job{})
	if result.Error != nil {
		return fmt.Errorf("prune jobs: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("pruned finished jobs", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}
