// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/links"
	"github.com/fleetguard/patrolcore/internal/log"
	"github.com/fleetguard/patrolcore/internal/metrics"
	"github.com/fleetguard/patrolcore/internal/resilience"
	"github.com/fleetguard/patrolcore/internal/telemetry"
)

// Config parameterizes the single session to the shared detection bus (C5).
type Config struct {
	Topics []string // operator-configurable subscribed topic set
}

// CloudLink is the single session to the shared cloud detection/event bus.
type CloudLink struct {
	client  *redis.Client
	cfg     Config
	bus     ports.Bus
	breaker *resilience.CircuitBreaker

	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	events chan ports.InboundEvent
}

// New constructs a CloudLink.
func New(client *redis.Client, cfg Config, bus ports.Bus) *CloudLink {
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{
			"cloud/violations/summary",
			"cloud/violations/counts",
			"cloud/violations/new",
		}
	}
	return &CloudLink{
		client:  client,
		cfg:     cfg,
		bus:     bus,
		breaker: resilience.NewCircuitBreaker("cloudlink", 3, 5, 30*time.Second, 15*time.Second),
		events:  make(chan ports.InboundEvent, 128),
	}
}

// Events returns the typed inbound-event stream for the Router to consume.
func (l *CloudLink) Events() <-chan ports.InboundEvent { return l.events }

func (l *CloudLink) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.reconnectLoop(runCtx)
	return nil
}

func (l *CloudLink) Disconnect() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return nil
}

func (l *CloudLink) IsConnected() bool { return l.connected.Load() }

func (l *CloudLink) reconnectLoop(ctx context.Context) {
	defer l.wg.Done()
	backoff := links.NewBackoff()
	tracer := telemetry.Tracer("cloudlink.reconnect")

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		attemptCtx, span := tracer.Start(ctx, "cloudlink.connect_attempt",
			trace.WithAttributes(telemetry.LinkAttributes("cloudlink", "", attempt)...))
		err := l.runOnce(attemptCtx)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if l.connected.Swap(false) {
			_ = l.bus.Publish(ctx, ports.TopicRobotDisconnected, map[string]any{"link": "cloud"})
		}
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff.Reset()
			continue
		}
		delay := backoff.Next()
		log.L().Warn().Err(err).Dur("retry_in", delay).Msg("cloud link disconnected")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (l *CloudLink) runOnce(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.cfg.Topics...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("cloudlink: subscribe: %w", err)
	}

	l.connected.Store(true)
	metrics.LinkReconnects.WithLabelValues("cloud").Inc()
	log.L().Info().Strs("topics", l.cfg.Topics).Msg("cloud link connected")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("cloudlink: channel closed")
			}
			l.dispatch(ctx, msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *CloudLink) dispatch(ctx context.Context, msg *redis.Message) {
	var body map[string]any
	_ = json.Unmarshal([]byte(msg.Payload), &body)
	kind := ports.EventDetectionSample
	if _, ok := body["total_violations"]; ok {
		kind = ports.EventDetectionSummary
	}
	evt := ports.InboundEvent{Source: "cloud", Topic: msg.Channel, Kind: kind, Payload: body}
	select {
	case l.events <- evt:
	case <-ctx.Done():
	default:
		log.L().Warn().Str("topic", msg.Channel).Msg("cloud link event queue full, dropping")
	}
}

// PublishPipelineControl issues a {command} payload to the vision pipeline's
// control topic (§4.5): start | pause | stop | restart.
func (l *CloudLink) PublishPipelineControl(ctx context.Context, command string) error {
	if !l.IsConnected() {
		return fmt.Errorf("cloudlink: %w", ports.ErrUnavailable)
	}
	if !l.breaker.AllowRequest() {
		return fmt.Errorf("cloudlink: %w: circuit open", ports.ErrUnavailable)
	}
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return err
	}
	publishErr := l.client.Publish(ctx, "cloud/pipeline/control", body).Err()
	if publishErr != nil {
		log.L().Warn().Str("command", command).Err(publishErr).Msg("pipeline control publish rejected, retrying once")
		publishErr = l.client.Publish(ctx, "cloud/pipeline/control", body).Err()
	}
	if publishErr != nil {
		l.breaker.RecordTechnicalFailure()
		return fmt.Errorf("cloudlink: publish pipeline control: %w", publishErr)
	}
	l.breaker.RecordSuccess()
	return nil
}

var _ ports.CloudLink = (*CloudLink)(nil)
