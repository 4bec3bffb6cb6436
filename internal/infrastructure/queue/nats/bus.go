package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/policy-radar/internal/infrastructure/resilience"
)

const (
	DefaultRebuildSubject = "policy.index.rebuild"
	DefaultUpdatedSubject = "policy.index.updated"
	workerQueueGroup      = "workers"
)

// RebuildRequest asks a worker to run a full index rebuild.
type RebuildRequest struct {
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// IndexUpdatedEvent announces a newly persisted snapshot.
type IndexUpdatedEvent struct {
	BuildID     string    `json:"build_id"`
	PublishedAt time.Time `json:"published_at"`
}

type Options struct {
	RebuildSubject       string
	UpdatedSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

// Bus carries rebuild requests to workers and index updates back to API
// instances.
type Bus struct {
	conn     *nats.Conn
	rebuild  string
	updated  string
	executor *resilience.Executor
}

func New(url string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("policy-radar"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		rebuild:  subjectOrDefault(options.RebuildSubject, DefaultRebuildSubject),
		updated:  subjectOrDefault(options.UpdatedSubject, DefaultUpdatedSubject),
		executor: options.ResilienceExecutor,
	}, nil
}

func subjectOrDefault(subject, fallback string) string {
	if subject = strings.TrimSpace(subject); subject != "" {
		return subject
	}
	return fallback
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishRebuildRequest(ctx context.Context, reason string) error {
	return b.publish(ctx, b.rebuild, RebuildRequest{Reason: reason, RequestedAt: time.Now().UTC()})
}

func (b *Bus) PublishIndexUpdated(ctx context.Context, buildID string) error {
	return b.publish(ctx, b.updated, IndexUpdatedEvent{BuildID: buildID, PublishedAt: time.Now().UTC()})
}

func (b *Bus) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	_, err = resilience.Call(ctx, b.executor, "nats.publish", func(context.Context) (struct{}, error) {
		return struct{}{}, b.conn.Publish(subject, data)
	}, classifyPublishError)
	return publishError(subject, err)
}

// SubscribeRebuildRequests delivers each request to one worker of the queue
// group and blocks until ctx is done.
func (b *Bus) SubscribeRebuildRequests(ctx context.Context, handler func(context.Context, RebuildRequest) error) error {
	return b.consume(ctx, b.rebuild, workerQueueGroup, func(ctx context.Context, data []byte) error {
		req, err := decodeRebuildRequest(data)
		if err != nil {
			return err
		}
		return handler(ctx, req)
	})
}

// SubscribeIndexUpdated fans every update out to all subscribers and blocks
// until ctx is done.
func (b *Bus) SubscribeIndexUpdated(ctx context.Context, handler func(context.Context, IndexUpdatedEvent) error) error {
	return b.consume(ctx, b.updated, "", func(ctx context.Context, data []byte) error {
		event, err := decodeIndexUpdated(data)
		if err != nil {
			return err
		}
		return handler(ctx, event)
	})
}

func (b *Bus) consume(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	onMessage := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			slog.Error("nats_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = b.conn.QueueSubscribe(subject, group, onMessage)
	} else {
		sub, err = b.conn.Subscribe(subject, onMessage)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeRebuildRequest accepts an empty body as a bare trigger.
func decodeRebuildRequest(data []byte) (RebuildRequest, error) {
	var req RebuildRequest
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return RebuildRequest{}, fmt.Errorf("decode rebuild request: %w", err)
	}
	return req, nil
}

func decodeIndexUpdated(data []byte) (IndexUpdatedEvent, error) {
	var event IndexUpdatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return IndexUpdatedEvent{}, fmt.Errorf("decode index updated event: %w", err)
	}
	return event, nil
}
