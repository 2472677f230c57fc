// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/executor"
	"github.com/fleetguard/patrolcore/internal/log"
)

// Holder is a hot-reloadable Config handle. Only the mutable timing/debounce
// subset (arrival delays, detection timeouts, violation smoothing, the
// low-battery threshold) is eligible for live reload; broker identity and
// storage paths require a process restart, since swapping either out from
// under an open RobotLink/CloudLink/Store connection is not safe.
type Holder struct {
	loader  *Loader
	current atomic.Pointer[Config]
	logger  zerolog.Logger

	reloadOpMu sync.Mutex
	watcher    *fsnotify.Watcher
	configDir  string
	configFile string

	mu        sync.Mutex
	listeners []chan<- Config
}

// NewHolder constructs a Holder already populated with initial.
func NewHolder(loader *Loader, initial Config) *Holder {
	h := &Holder{loader: loader, logger: log.WithComponent("config")}
	h.current.Store(&initial)
	return h
}

// Get returns the current Config (thread-safe).
func (h *Holder) Get() Config {
	if c := h.current.Load(); c != nil {
		return *c
	}
	return Default()
}

// ExecutorConfig implements supervisor.ConfigProvider directly off the live
// Holder, so a reload takes effect on the next patrol StartPatrol call.
func (h *Holder) ExecutorConfig() executor.Config {
	return h.Get().ExecutorConfig()
}

// Reload re-resolves the Config from disk/environment, carries over the
// immutable broker/storage fields from the currently-running Config
// (a file edit cannot relocate the Store or rotate broker credentials
// without a restart), validates, and swaps.
func (h *Holder) Reload() error {
	h.reloadOpMu.Lock()
	defer h.reloadOpMu.Unlock()

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Msg("config: reload failed to load")
		return err
	}

	old := h.Get()
	next.LocalBroker = old.LocalBroker
	next.CloudBroker = old.CloudBroker
	next.StorePath = old.StorePath
	next.ProjectionPath = old.ProjectionPath
	next.SettingsOverlayPath = old.SettingsOverlayPath

	if err := next.Validate(); err != nil {
		h.logger.Error().Err(err).Msg("config: reload produced invalid configuration")
		return err
	}

	h.current.Store(&next)
	h.notify(next)
	h.logger.Info().Msg("config: reloaded mutable settings")
	return nil
}

// Watch starts watching the loader's backing file for changes, debouncing
// rapid successive writes (editors frequently write-then-rename). A loader
// built with an empty path makes this a no-op, matching environment-only
// deployments that carry no config file at all.
func (h *Holder) Watch(ctx context.Context) error {
	if h.loader.path == "" {
		h.logger.Info().Msg("config: file watcher disabled, environment-only configuration")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.loader.path)
	h.configFile = filepath.Base(h.loader.path)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch dir: %w", err)
	}

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	defer h.watcher.Close()

	var debounce *time.Timer
	const settle = 300 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != h.configFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(settle, func() {
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("config: automatic reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config: watcher error")
		}
	}
}

// RegisterListener subscribes ch to every successful Reload. The caller owns
// the channel's lifetime.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}
