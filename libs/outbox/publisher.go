package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Retention is how long published rows are kept; zero keeps them forever.
	Retention time.Duration
}

// Publisher relays outbox rows to Kafka, one topic per event type, keyed by aggregate id so
// the events of one appointment stay ordered on a partition.
type Publisher struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
	cfg    PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{pool: pool, repo: repo, logger: logger, cfg: cfg}
}

// Run polls until ctx is done. Without brokers it logs once and returns, leaving rows queued.
func (p *Publisher) Run(ctx context.Context) {
	brokers := kafkax.SplitBrokers(p.cfg.Brokers)
	if len(brokers) == 0 {
		p.logger.Warn("outbox relay disabled: no kafka brokers configured")
		return
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer func() { _ = writer.Close() }()

	poll := time.NewTicker(p.cfg.PollEvery)
	defer poll.Stop()
	var lastPrune time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
		}
		p.drain(ctx, writer)
		if p.cfg.Retention > 0 && time.Since(lastPrune) >= time.Hour {
			lastPrune = time.Now()
			p.prune(ctx)
		}
	}
}

// drain publishes full batches back to back until the backlog is gone or a batch fails.
func (p *Publisher) drain(ctx context.Context, writer MessageWriter) {
	total := 0
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx, writer)
		if err != nil {
			p.logger.Error("outbox publish failed", "err", err, "published", total)
			return
		}
		total += n
		if n < p.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		p.logger.Debug("outbox relayed", "count", total)
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.ClaimBatch(ctx, tx, p.cfg.BatchSize)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	if err := writer.WriteMessages(ctx, Messages(ctx, records)...); err != nil {
		return 0, err
	}
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

func (p *Publisher) prune(ctx context.Context) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.logger.Warn("outbox prune failed", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()
	n, err := p.repo.PrunePublished(ctx, tx, time.Now().Add(-p.cfg.Retention))
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		p.logger.Warn("outbox prune failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox pruned", "deleted", n)
	}
}

// Messages turns records into Kafka messages carrying the event meta headers and each record's
// stored trace.
func Messages(ctx context.Context, records []Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msg := kafkax.NewMessage(kafkax.EventMeta{EventID: rec.EventID, EventType: rec.EventType}, rec.AggregateID, rec.Payload)
		msg.Headers = kafkax.InjectTraceHeaders(rec.Trace.Attach(ctx), msg.Headers)
		msgs = append(msgs, msg)
	}
	return msgs
}
