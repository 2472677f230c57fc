// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package robotlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/links"
	"github.com/fleetguard/patrolcore/internal/log"
	"github.com/fleetguard/patrolcore/internal/metrics"
	"github.com/fleetguard/patrolcore/internal/resilience"
	"github.com/fleetguard/patrolcore/internal/telemetry"
	"github.com/fleetguard/patrolcore/internal/textnorm"
)

// topicPrefix is the bit-exact wire convention of §4.4: temi/{serial}/...
const topicPrefix = "temi"

// RobotLink is the one-session-per-robot client of the local broker (C4).
type RobotLink struct {
	client  *redis.Client
	robot   model.Robot
	bus     ports.Bus
	limit   *rate.Limiter
	breaker *resilience.CircuitBreaker

	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	events chan ports.InboundEvent
}

// New constructs a RobotLink. client must already be configured to reach
// robot.BrokerEndpoint:robot.Port (and TLS, if robot.UseTLS).
func New(client *redis.Client, robot model.Robot, bus ports.Bus) *RobotLink {
	return &RobotLink{
		client:  client,
		robot:   robot,
		bus:     bus,
		limit:   rate.NewLimiter(rate.Limit(20), 40),
		breaker: resilience.NewCircuitBreaker("robotlink."+robot.Serial, 3, 5, 30*time.Second, 15*time.Second),
		events:  make(chan ports.InboundEvent, 128),
	}
}

// Events returns the typed inbound-event stream for the Router to consume.
// There is exactly one reader; the Router runs it on an isolated per-robot
// worker so a slow robot cannot stall another (§4.6).
func (l *RobotLink) Events() <-chan ports.InboundEvent { return l.events }

func (l *RobotLink) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.reconnectLoop(runCtx)
	return nil
}

func (l *RobotLink) Disconnect() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return nil
}

func (l *RobotLink) IsConnected() bool { return l.connected.Load() }

func (l *RobotLink) reconnectLoop(ctx context.Context) {
	defer l.wg.Done()
	backoff := links.NewBackoff()
	tracer := telemetry.Tracer("robotlink.reconnect")

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		attemptCtx, span := tracer.Start(ctx, "robotlink.connect_attempt",
			trace.WithAttributes(telemetry.LinkAttributes("robotlink", l.robot.Serial, attempt)...))
		err := l.runOnce(attemptCtx)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		wasConnected := l.connected.Swap(false)
		if wasConnected {
			l.emitDisconnected(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff.Reset()
			continue
		}
		delay := backoff.Next()
		log.L().Warn().Str("robot_serial", l.robot.Serial).Err(err).Dur("retry_in", delay).Msg("robot link disconnected")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (l *RobotLink) runOnce(ctx context.Context) error {
	pattern := fmt.Sprintf("%s/%s/*", topicPrefix, l.robot.Serial)
	pubsub := l.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("robotlink: subscribe %s: %w", pattern, err)
	}

	l.connected.Store(true)
	metrics.LinkReconnects.WithLabelValues("robot").Inc()
	_ = l.bus.Publish(ctx, ports.TopicRobotConnected, map[string]any{"robotId": l.robot.ID, "serial": l.robot.Serial})
	log.L().Info().Str("robot_serial", l.robot.Serial).Msg("robot link connected")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("robotlink: channel closed")
			}
			l.dispatch(ctx, msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *RobotLink) emitDisconnected(ctx context.Context) {
	_ = l.bus.Publish(ctx, ports.TopicRobotDisconnected, map[string]any{"robotId": l.robot.ID, "serial": l.robot.Serial})
	log.L().Warn().Str("robot_serial", l.robot.Serial).Msg("robot link disconnected")
}

func (l *RobotLink) dispatch(ctx context.Context, msg *redis.Message) {
	evt := parseInboundTopic(l.robot.ID, l.robot.Serial, msg.Channel, msg.Payload)
	select {
	case l.events <- evt:
	case <-ctx.Done():
	default:
		log.L().Warn().Str("robot_serial", l.robot.Serial).Str("topic", msg.Channel).Msg("robot link event queue full, dropping")
	}
}

// parseInboundTopic decodes a raw `temi/{serial}/{kind}/...` topic into a
// typed InboundEvent, matching the wire convention of §4.4 bit-for-bit.
func parseInboundTopic(robotID int64, serial, topic, payload string) ports.InboundEvent {
	evt := ports.InboundEvent{Source: "robot", RobotID: robotID, Serial: serial, Topic: topic, Kind: ports.EventUnknown}

	var body map[string]any
	_ = json.Unmarshal([]byte(payload), &body)
	evt.Payload = body

	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != topicPrefix {
		return evt
	}
	switch parts[2] {
	case "status":
		if len(parts) >= 4 && parts[3] == "battery" {
			evt.Kind = ports.EventBattery
		} else {
			evt.Kind = ports.EventHealth
		}
	case "event":
		if len(parts) >= 4 {
			switch parts[3] {
			case "waypoint_arrived":
				evt.Kind = ports.EventWaypointArrived
			case "waypoint_failed":
				evt.Kind = ports.EventWaypointFailed
			case "known_waypoints":
				evt.Kind = ports.EventKnownWaypoints
			default:
				evt.Kind = ports.EventUnknown
			}
		}
	case "location":
		evt.Kind = ports.EventLocation
	case "health":
		evt.Kind = ports.EventHealth
	}
	return evt
}

// publish issues one command to the robot, rate limited. ExactlyOnce=false,
// AtLeastOnce=true: Publish returns once the broker has accepted it, not once
// the robot has acted (§4.4). A broker-rejected publish is retried exactly
// once before surfacing as Unavailable (§7); repeated rejections trip the
// per-robot circuit breaker so a persistently failing robot stops absorbing
// retries from every subsequent command.
func (l *RobotLink) publish(ctx context.Context, category, action string, payload map[string]any) error {
	if !l.IsConnected() {
		return fmt.Errorf("robotlink: %w", ports.ErrUnavailable)
	}
	if !l.breaker.AllowRequest() {
		return fmt.Errorf("robotlink: %w: circuit open", ports.ErrUnavailable)
	}
	l.breaker.RecordAttempt()
	if err := l.limit.Wait(ctx); err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/command/%s/%s", topicPrefix, l.robot.Serial, category, action)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("robotlink: marshal payload: %w", err)
	}

	publishErr := l.client.Publish(ctx, topic, body).Err()
	if publishErr != nil {
		log.L().Warn().Str("robot_serial", l.robot.Serial).Str("topic", topic).Err(publishErr).Msg("command publish rejected, retrying once")
		publishErr = l.client.Publish(ctx, topic, body).Err()
	}
	if publishErr != nil {
		l.breaker.RecordTechnicalFailure()
		return fmt.Errorf("robotlink: publish %s: %w", topic, publishErr)
	}
	l.breaker.RecordSuccess()
	return nil
}

// --- command helpers (§4.4) -------------------------------------------------

func (l *RobotLink) GoTo(ctx context.Context, waypoint string) error {
	return l.publish(ctx, "navigation", "goto", map[string]any{"waypoint": waypoint})
}

func (l *RobotLink) GoHome(ctx context.Context) error {
	return l.publish(ctx, "navigation", "go_home", nil)
}

func (l *RobotLink) Stop(ctx context.Context) error {
	return l.publish(ctx, "navigation", "stop", nil)
}

func (l *RobotLink) Speak(ctx context.Context, text string) error {
	return l.publish(ctx, "audio", "speak", map[string]any{"text": textnorm.NFC(text)})
}

func (l *RobotLink) ShowWebview(ctx context.Context, url string) error {
	return l.publish(ctx, "ui", "show_webview", map[string]any{"url": textnorm.NFC(url)})
}

func (l *RobotLink) CloseWebview(ctx context.Context) error {
	return l.publish(ctx, "ui", "close_webview", nil)
}

func (l *RobotLink) PlayVideo(ctx context.Context, url string) error {
	return l.publish(ctx, "media", "play_video", map[string]any{"url": textnorm.NFC(url)})
}

func (l *RobotLink) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > 10 {
		return fmt.Errorf("robotlink: %w: volume must be 0..10", ports.ErrValidation)
	}
	return l.publish(ctx, "audio", "set_volume", map[string]any{"level": level})
}

func (l *RobotLink) Tilt(ctx context.Context, degrees int) error {
	if degrees < -25 || degrees > 60 {
		return fmt.Errorf("robotlink: %w: tilt must be -25..60", ports.ErrValidation)
	}
	return l.publish(ctx, "sensor", "tilt", map[string]any{"degrees": degrees})
}

func (l *RobotLink) Turn(ctx context.Context, degrees int) error {
	if degrees < -360 || degrees > 360 {
		return fmt.Errorf("robotlink: %w: turn must be -360..360", ports.ErrValidation)
	}
	return l.publish(ctx, "navigation", "turn", map[string]any{"degrees": degrees})
}

func (l *RobotLink) Joystick(ctx context.Context, x, y, theta float64) error {
	return l.publish(ctx, "navigation", "joystick", map[string]any{"x": x, "y": y, "theta": theta})
}

func (l *RobotLink) SetGoToSpeed(ctx context.Context, tier string) error {
	return l.publish(ctx, "settings", "goto_speed", map[string]any{"tier": tier})
}

func (l *RobotLink) RequestWaypoints(ctx context.Context) error {
	return l.publish(ctx, "info", "request_waypoints", nil)
}

func (l *RobotLink) RequestBattery(ctx context.Context) error {
	return l.publish(ctx, "info", "request_battery", nil)
}

func (l *RobotLink) RequestPosition(ctx context.Context) error {
	return l.publish(ctx, "info", "request_position", nil)
}

func (l *RobotLink) RequestMapImage(ctx context.Context, format string, chunkSize int) error {
	return l.publish(ctx, "map", "request_image", map[string]any{"format": format, "chunkSize": chunkSize})
}

func (l *RobotLink) Restart(ctx context.Context) error {
	return l.publish(ctx, "system", "restart", nil)
}

func (l *RobotLink) Shutdown(ctx context.Context) error {
	return l.publish(ctx, "system", "shutdown", nil)
}

var _ ports.RobotLink = (*RobotLink)(nil)
