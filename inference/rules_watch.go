package inference

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"propcast/logger"
)

// RuleSet holds the active classifier and swaps it atomically on reload.
type RuleSet struct {
	current atomic.Pointer[Classifier]
	log     *zap.Logger
}

func NewRuleSet(c *Classifier, log *zap.Logger) *RuleSet {
	r := &RuleSet{log: logger.OrNop(log)}
	r.current.Store(c)
	return r
}

// LoadRuleSet compiles the rules at path, or the default cascade when path is empty.
func LoadRuleSet(path string, log *zap.Logger) (*RuleSet, error) {
	file := DefaultRules()
	if path != "" {
		var err error
		if file, err = LoadRules(path); err != nil {
			return nil, err
		}
	}
	c, err := NewClassifier(file)
	if err != nil {
		return nil, err
	}
	return NewRuleSet(c, log), nil
}

func (r *RuleSet) Classifier() *Classifier { return r.current.Load() }

// Reload recompiles path. On error the active classifier is kept.
func (r *RuleSet) Reload(path string) error {
	file, err := LoadRules(path)
	if err != nil {
		return err
	}
	c, err := NewClassifier(file)
	if err != nil {
		return err
	}
	r.current.Store(c)
	return nil
}

// Watch reloads path whenever it is written or replaced, until ctx is done.
// The parent directory is watched so editors that rename over the file are seen.
func (r *RuleSet) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := r.Reload(target); err != nil {
					r.log.Error("rules reload failed, keeping previous rules", zap.String("path", target), zap.Error(err))
					continue
				}
				r.log.Info("rules reloaded", zap.String("path", target), zap.Int("rules", len(r.Classifier().rules)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Warn("rules watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
