package monitor

import (
	"fmt"
	"os"

	"github.com/jamesainslie/filemon/pkg/daemon/store"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/history"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
	"github.com/jamesainslie/filemon/pkg/filemon/watcher"
)

// Stack is a Coordinator together with the collaborators built for it from
// a Config.
type Stack struct {
	Coordinator *Coordinator
	History     *history.Log
	State       *store.Store
}

// WatchOptions converts the watch section of a Config.
func WatchOptions(cfg config.WatchConfig) watcher.Options {
	return watcher.Options{
		Debounce:     cfg.Debounce,
		PollInterval: cfg.PollInterval,
		UsePolling:   cfg.UsePolling,
	}
}

// FromConfig builds a Coordinator with the history log and state store the
// configuration enables. Extra options are applied last. Close releases the
// state store.
func FromConfig(cfg *config.Config, options ...Option) (*Stack, error) {
	logger := logging.Get("monitor")
	s := &Stack{}

	var base []Option
	if cfg.History.Enabled {
		h, err := history.New(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		if removed, err := h.Cleanup(cfg.History.RetentionDays); err != nil {
			logger.Warn("failed to clean history", "error", err)
		} else if removed > 0 {
			logger.Info("removed old history records", "count", removed)
		}
		s.History = h
		base = append(base, WithHistory(h))
	}

	if cfg.State.Enabled {
		if err := os.MkdirAll(cfg.State.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		st, err := store.Open(cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open state store %s: %w", cfg.State.Path, err)
		}
		s.State = st
		base = append(base, WithStateStore(st))
	}

	c, err := New(cfg.Options(), append(base, options...)...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Coordinator = c
	return s, nil
}

// Close releases the state store.
func (s *Stack) Close() error {
	if s.State == nil {
		return nil
	}
	err := s.State.Close()
	s.State = nil
	return err
}
