package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/kafkax"
	otelx "github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/otel"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	pool       *db.Pool
	repo       *Repository
	logger     *slog.Logger
	brokers    []string
	pollEvery  time.Duration
	maxBackoff time.Duration
	batchSize  int
	retention  time.Duration
	lastPurge  time.Time
}

type PublisherConfig struct {
	Brokers    string
	PollEvery  time.Duration
	MaxBackoff time.Duration
	BatchSize  int
	// Retention is how long rows are kept: published rows always, and
	// pending rows too while no brokers are configured.
	Retention time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.PollEvery {
		cfg.MaxBackoff = max(time.Minute, cfg.PollEvery)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	return &Publisher{
		pool:       pool,
		repo:       repo,
		logger:     logger,
		brokers:    kafkax.SplitBrokers(cfg.Brokers),
		pollEvery:  cfg.PollEvery,
		maxBackoff: cfg.MaxBackoff,
		batchSize:  cfg.BatchSize,
		retention:  cfg.Retention,
	}
}

// Run relays outbox rows to Kafka until ctx is done. Without brokers it only
// purges rows older than the retention window so the table stays bounded.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured); expiring rows instead",
			"retention", p.retention)
		p.loop(ctx, "outbox purge", func(ctx context.Context) error {
			return p.purge(ctx, true)
		})
		return
	}

	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	p.loop(ctx, "outbox publish", func(ctx context.Context) error {
		if err := p.publishBatch(ctx, writer); err != nil {
			return err
		}
		return p.purge(ctx, false)
	})
}

// loop runs step every pollEvery, backing off exponentially while it fails.
func (p *Publisher) loop(ctx context.Context, name string, step func(context.Context) error) {
	timer := time.NewTimer(p.pollEvery)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := retryDelay(p.pollEvery, p.maxBackoff, failures)
			p.logger.Error(name+" failed", "err", err, "failures", failures, "retry_in", delay)
			timer.Reset(delay)
			continue
		}
		failures = 0
		timer.Reset(p.pollEvery)
	}
}

// retryDelay doubles base for each consecutive failure, capped at ceiling.
func retryDelay(base, ceiling time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// purge runs at most once per hour.
func (p *Publisher) purge(ctx context.Context, includePending bool) error {
	now := time.Now()
	if now.Sub(p.lastPurge) < time.Hour {
		return nil
	}
	var removed int64
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		removed, err = p.repo.Purge(ctx, tx, now.Add(-p.retention), includePending)
		return err
	})
	if err != nil {
		return err
	}
	p.lastPurge = now
	if removed > 0 {
		p.logger.Info("outbox rows expired", "count", removed, "pending_included", includePending)
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, Message(ctx, r))
		ids = append(ids, r.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Message converts a stored record, restoring the trace that wrote it.
func Message(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.StoredTrace{Traceparent: r.Traceparent, Tracestate: r.Tracestate}.Restore(ctx)
	meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType, TenantID: r.TenantID}
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
	}
}
