package queue

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/internal/clock"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type queue struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) jobsdomain.Queue {
	return &queue{
		db:    p.DB,
		log:   p.Log.Named("jobs.queue"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (q *queue) Enqueue(ctx context.Context, req jobsdomain.Request) (*jobsdomain.Job, error) {
	job, err := q.buildJob(req)
	if err != nil {
		return nil, err
	}

	// Duplicate dedupe keys are silently dropped so webhook
	// redeliveries never enqueue the same work twice.
	result := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(job)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		q.log.Debug("job deduplicated",
			zap.String("kind", string(req.Kind)),
			zap.String("dedupe_key", req.DedupeKey),
		)
		return nil, nil
	}
	return job, nil
}

func (q *queue) EnqueueBatch(ctx context.Context, reqs []jobsdomain.Request) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}

	jobs := make([]*jobsdomain.Job, 0, len(reqs))
	for _, req := range reqs {
		job, err := q.buildJob(req)
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, job)
	}

	result := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(&jobs)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (q *queue) buildJob(req jobsdomain.Request) (*jobsdomain.Job, error) {
	if req.Kind == "" {
		return nil, jobsdomain.ErrInvalidKind
	}

	now := q.clock.Now().UTC()
	runAfter := req.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}

	var dedupe *string
	if req.DedupeKey != "" {
		key := req.DedupeKey
		dedupe = &key
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	return &jobsdomain.Job{
		ID:        q.genID.Generate(),
		Kind:      req.Kind,
		Payload:   datatypes.JSONMap(payload),
		DedupeKey: dedupe,
		Status:    jobsdomain.StatusPending,
		RunAfter:  runAfter,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
