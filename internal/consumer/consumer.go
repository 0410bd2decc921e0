package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RnD-Experts-Team/PNE-EO/internal/config"
	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/event"
	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/inbox"
	"github.com/RnD-Experts-Team/PNE-EO/internal/infrastructure/postgres"

	"github.com/nats-io/nats.go/jetstream"
)

// InboxStore is the durable idempotency and retry bookkeeping for events.
// All methods run on the transaction injected into the context.
type InboxStore interface {
	FindOrCreate(ctx context.Context, rec *inbox.Record) (*inbox.Record, error)
	MarkProcessed(ctx context.Context, rec *inbox.Record) error
	RecordFailure(ctx context.Context, rec *inbox.Record, cause string, maxAttempts int) (inbox.Decision, error)
}

// Msg is the subset of jetstream.Msg the consumer needs. Narrowed so the
// processing pipeline can be driven without a broker.
type Msg interface {
	Subject() string
	Reply() string
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Consumer owns the broker connection and drives the inbox, router and
// handlers for every pulled message. Messages are processed strictly one
// at a time; concurrent replicas are serialized by the inbox row lock.
type Consumer struct {
	js      jetstream.JetStream
	tx      postgres.Transactor
	inbox   InboxStore
	router  *Router
	streams []config.Stream
	cfg     config.Consumer
	log     *slog.Logger

	// client-side consumer handles, one per stream|durable
	sources map[string]jetstream.Consumer
}

func New(js jetstream.JetStream, tx postgres.Transactor, inboxStore InboxStore, router *Router, streams []config.Stream, cfg config.Consumer, log *slog.Logger) *Consumer {
	return &Consumer{
		js:      js,
		tx:      tx,
		inbox:   inboxStore,
		router:  router,
		streams: streams,
		cfg:     cfg,
		log:     log,
		sources: make(map[string]jetstream.Consumer),
	}
}

// Run pulls batches from every configured stream in turn until the context
// is cancelled. Transient errors are logged and followed by a backoff; the
// loop itself never exits on them. The in-flight message always finishes
// its ack/nak decision before shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.streams) == 0 {
		return fmt.Errorf("no streams configured")
	}

	for {
		for _, s := range c.streams {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := c.consumeStream(ctx, s); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Error("consumer stream error",
					"stream", s.Name, "consumer", s.Durable, "error", err)
				if !sleepCtx(ctx, c.cfg.ErrorBackoff) {
					return ctx.Err()
				}
			}
		}

		if !sleepCtx(ctx, c.cfg.CycleSleep) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeStream(ctx context.Context, s config.Stream) error {
	if s.Name == "" || s.Durable == "" {
		return fmt.Errorf("stream config requires name and durable")
	}

	source, err := c.source(ctx, s)
	if err != nil {
		return err
	}

	batch, err := source.Fetch(c.cfg.Batch, jetstream.FetchMaxWait(c.cfg.PullTimeout))
	if err != nil {
		return fmt.Errorf("fetch from %s/%s: %w", s.Name, s.Durable, err)
	}

	for msg := range batch.Messages() {
		c.handleMessage(ctx, msg, s.Name, s.Durable)
	}

	if err := batch.Error(); err != nil {
		return fmt.Errorf("fetch batch from %s/%s: %w", s.Name, s.Durable, err)
	}

	return nil
}

// source looks up or creates the durable pull consumer once and caches the
// client-side handle so the lookup does not run on every cycle.
func (c *Consumer) source(ctx context.Context, s config.Stream) (jetstream.Consumer, error) {
	key := s.Name + "|" + s.Durable
	if src, ok := c.sources[key]; ok {
		return src, nil
	}

	src, err := c.js.CreateOrUpdateConsumer(ctx, s.Name, jetstream.ConsumerConfig{
		Durable:       s.Durable,
		FilterSubject: s.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("init consumer %s/%s: %w", s.Name, s.Durable, err)
	}

	c.sources[key] = src
	return src, nil
}

type txOutcome int

const (
	outcomeProcessed txOutcome = iota
	outcomeAlreadyProcessed
	outcomeAlreadyParked
)

func (c *Consumer) handleMessage(ctx context.Context, msg Msg, stream, durable string) {
	// Real JetStream deliveries always carry a $JS.ACK reply subject.
	// Anything else is stray core NATS traffic with nothing to acknowledge.
	if !isJetStreamDelivery(msg.Reply()) {
		return
	}

	// Transport-hygiene filter, runs before any inbox bookkeeping.
	if !c.subjectAllowed(msg.Subject()) {
		eventsDropped.Inc()
		c.ackOrTerm(msg, stream, durable, "subject_not_allowed")
		return
	}

	if len(msg.Data()) == 0 {
		eventsDropped.Inc()
		c.ackOrTerm(msg, stream, durable, "empty_payload")
		return
	}

	env, err := event.Decode(msg.Data())
	if err != nil {
		eventsDropped.Inc()
		c.log.Warn("undecodable event payload",
			"stream", stream, "consumer", durable, "subject", msg.Subject(), "error", err)
		c.ackOrTerm(msg, stream, durable, "non_json_payload")
		return
	}

	// No reliable event id yet, so nothing to remember in the inbox.
	if err := env.Validate(); err != nil {
		eventsDropped.Inc()
		c.log.Warn("event envelope missing id or subject",
			"stream", stream, "consumer", durable, "subject", msg.Subject(), "error", err)
		c.ackOrTerm(msg, stream, durable, "missing_id_or_subject")
		return
	}

	started := time.Now()

	seed := &inbox.Record{
		EventID:  env.ID,
		Subject:  env.Subject,
		Source:   env.Source,
		Stream:   stream,
		Consumer: durable,
		Payload:  msg.Data(),
	}

	var outcome txOutcome
	var record *inbox.Record

	txErr := c.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		rec, err := c.inbox.FindOrCreate(txCtx, seed)
		if err != nil {
			return err
		}
		record = rec

		// Terminal states commit as no-ops; the row is never touched again.
		if rec.ParkedAt != nil {
			outcome = outcomeAlreadyParked
			return nil
		}
		if rec.ProcessedAt != nil {
			outcome = outcomeAlreadyProcessed
			return nil
		}

		handler, err := c.router.Resolve(env.Subject)
		if err != nil {
			return err
		}

		hctx, cancel := context.WithTimeout(txCtx, c.cfg.HandlerTimeout)
		defer cancel()

		if err := handler.Handle(hctx, env); err != nil {
			return err
		}

		if err := c.inbox.MarkProcessed(txCtx, rec); err != nil {
			return err
		}

		outcome = outcomeProcessed
		return nil
	})

	if txErr != nil {
		c.settleFailure(ctx, msg, seed, stream, durable, txErr)
		return
	}

	switch outcome {
	case outcomeAlreadyParked:
		eventsDuplicate.Inc()
		c.log.Warn("event is parked, redelivery terminated",
			"stream", stream, "consumer", durable,
			"event_id", env.ID, "subject", env.Subject, "attempts", record.Attempts)
		c.ackOrTerm(msg, stream, durable, "already_parked")
	case outcomeAlreadyProcessed:
		eventsDuplicate.Inc()
		c.ackOrTerm(msg, stream, durable, "already_processed")
	default:
		eventsProcessed.Inc()
		processingDuration.Observe(time.Since(started).Seconds())
		c.log.Info("event processed",
			"stream", stream, "consumer", durable,
			"event_id", env.ID, "subject", env.Subject)
		c.ackOrTerm(msg, stream, durable, "processed_ok")
	}
}

// settleFailure runs the second, separate transaction that re-acquires the
// inbox row under lock and records the failed attempt. The projection
// transaction has already been rolled back, which on a first sighting also
// rolled back the insert, so the row is recreated here when needed.
func (c *Consumer) settleFailure(ctx context.Context, msg Msg, seed *inbox.Record, stream, durable string, cause error) {
	var decision inbox.Decision
	locked := false

	txErr := c.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		rec, err := c.inbox.FindOrCreate(txCtx, seed)
		if err != nil {
			return err
		}
		locked = true

		decision, err = c.inbox.RecordFailure(txCtx, rec, cause.Error(), c.cfg.MaxAttempts)
		return err
	})

	if txErr != nil {
		// Conservative fallback: the failure could not be accounted, so ask
		// the broker to redeliver and try the whole thing again.
		reason := "attempt_update_failed"
		if !locked {
			reason = "missing_inbox_row"
		}
		c.log.Error("event failed and attempts could not be updated",
			"stream", stream, "consumer", durable,
			"event_id", seed.EventID, "subject", seed.Subject,
			"error", cause, "inbox_error", txErr)
		c.nakWithDelay(msg, stream, durable, reason)
		return
	}

	if decision == inbox.DecisionPark {
		eventsParked.Inc()
		c.log.Error("event parked after max attempts",
			"stream", stream, "consumer", durable,
			"event_id", seed.EventID, "subject", seed.Subject,
			"max_attempts", c.cfg.MaxAttempts, "error", cause)
		c.ackOrTerm(msg, stream, durable, "parked_max_attempts")
		return
	}

	eventsRetried.Inc()
	c.log.Warn("event handling failed, retry scheduled",
		"stream", stream, "consumer", durable,
		"event_id", seed.EventID, "subject", seed.Subject,
		"delay", c.cfg.RetryDelay, "error", cause)
	c.nakWithDelay(msg, stream, durable, "handler_failed_retry")
}

func (c *Consumer) subjectAllowed(subject string) bool {
	if subject == "" {
		return false
	}
	for _, prefix := range c.cfg.AllowPrefixes {
		if prefix != "" && strings.HasPrefix(subject, prefix) {
			return true
		}
	}
	return false
}

// ackOrTerm stops redelivery. Ack and term are equivalent forward-progress
// signals here; term is the fallback when ack fails.
func (c *Consumer) ackOrTerm(msg Msg, stream, durable, reason string) {
	err := msg.Ack()
	if err == nil {
		return
	}
	c.log.Warn("ack failed, trying term",
		"stream", stream, "consumer", durable,
		"subject", msg.Subject(), "reason", reason, "error", err)

	if err := msg.Term(); err != nil {
		c.log.Warn("term failed",
			"stream", stream, "consumer", durable,
			"subject", msg.Subject(), "reason", reason, "error", err)
	}
}

func (c *Consumer) nakWithDelay(msg Msg, stream, durable, reason string) {
	if err := msg.NakWithDelay(c.cfg.RetryDelay); err != nil {
		c.log.Warn("nak failed",
			"stream", stream, "consumer", durable,
			"subject", msg.Subject(), "reason", reason, "error", err)
	}
}

func isJetStreamDelivery(reply string) bool {
	return strings.HasPrefix(reply, "$JS.ACK.")
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
