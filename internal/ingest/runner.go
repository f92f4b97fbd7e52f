// Package ingest feeds documents from a Kafka topic into viewing sessions.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/session"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
)

// Message is the wire format of one document message.
type Message struct {
	Session  string          `json:"session"`
	Mode     string          `json:"mode,omitempty"`
	Document json.RawMessage `json:"document"`
	// Version, when set, must increase per session; older or repeated
	// versions are skipped.
	Version uint64    `json:"version,omitempty"`
	TS      time.Time `json:"ts,omitempty"`
}

type Loader interface {
	LoadDocument(ctx context.Context, id string, req session.LoadRequest) (state.State, error)
}

type Runner struct {
	log      *slog.Logger
	cfg      Config
	loader   Loader
	ms       *metricSet
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg Config, l Loader, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		loader: l,
		ms:     newMetricSet(opts.Register),
		ver:    newVersionDedupe(8192),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("ingest runner disabled")
		return nil
	}
	if r.loader == nil {
		return errors.New("ingest runner: session loader is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   r.setAssignment,
		cleanup: func(sarama.ConsumerGroupSession) { r.clearAssignment() },
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("ingest runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("ingest runner stopped")
}

func (r *Runner) setAssignment(sess sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(true)
	r.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
}

func (r *Runner) clearAssignment() {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(false)
	r.assign = map[int32]struct{}{}
}

// Readiness reports whether the group currently owns partitions. A disabled
// runner is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Enabled {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// handleMessage applies one message. Malformed messages and invalid
// documents are logged and skipped; any other failure is returned so the
// message is retried.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}
	log := r.log.With("partition", msg.Partition, "offset", msg.Offset)

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		observability.IncIngest("invalid")
		log.Warn("ingest: skipping undecodable message", "err", err)
		return nil
	}
	mode, ok := session.ParseMode(m.Mode)
	if m.Session == "" || !ok || len(m.Document) == 0 {
		observability.IncIngest("invalid")
		log.Warn("ingest: skipping message", "session", m.Session, "mode", m.Mode)
		return nil
	}
	if m.Version > 0 && r.ver.stale(m.Session, m.Version) {
		observability.IncIngest("skip_version")
		return nil
	}

	_, err := r.loader.LoadDocument(ctx, m.Session, session.LoadRequest{
		Mode:          mode,
		Source:        session.SourceKafka,
		Body:          m.Document,
		CreateMissing: true,
	})
	r.ms.proc.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, geojson.ErrInvalidDocument):
		observability.IncIngest("invalid")
		log.Warn("ingest: invalid document skipped", "session", m.Session, "err", err)
		return nil
	case err != nil:
		observability.IncIngest("error")
		return fmt.Errorf("apply document to session %s: %w", m.Session, err)
	}

	if m.Version > 0 {
		r.ver.record(m.Session, m.Version)
	}
	observability.IncIngest("ok")
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

// ConsumeClaim marks a message only after it was handled, so a failed
// message is redelivered after the next rebalance.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
