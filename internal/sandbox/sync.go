package sandbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Uploader pushes local source directories into a workspace container.
// DockerProvisioner satisfies it.
type Uploader interface {
	UploadSources(ctx context.Context, workspaceID string, sources []string) error
}

// SourceSyncer watches local source directories and re-uploads them to the
// workspace after changes settle. Events are debounced so a burst of writes
// (editor saves, git checkouts) produces a single upload.
type SourceSyncer struct {
	workspaceID  string
	sources      []string
	uploader     Uploader
	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	mu      sync.Mutex
	pending bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSourceSyncer creates a syncer for the given workspace and sources.
func NewSourceSyncer(workspaceID string, sources []string, uploader Uploader) (*SourceSyncer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SourceSyncer{
		workspaceID:  workspaceID,
		sources:      sources,
		uploader:     uploader,
		watcher:      watcher,
		debounceTime: 500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start registers watches for every source directory and begins syncing.
func (s *SourceSyncer) Start() error {
	for _, src := range s.sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return fmt.Errorf("failed to resolve source %q: %w", src, err)
		}
		stat, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to stat source %q: %w", src, err)
		}
		if !stat.IsDir() {
			abs = filepath.Dir(abs)
		}

		matcher := compileIgnores(abs)
		walkErr := filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return nil
			}
			if rel != "." && matcher.MatchesPath(rel) {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(path); err != nil {
				log.Printf("warning: failed to watch %s: %v", path, err)
			}
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("failed to walk source %q: %w", src, walkErr)
		}
	}

	s.wg.Add(2)
	go s.eventLoop()
	go s.debounceLoop()
	return nil
}

// Stop halts watching. Pending changes are dropped.
func (s *SourceSyncer) Stop() error {
	s.cancel()
	s.wg.Wait()
	return s.watcher.Close()
}

func (s *SourceSyncer) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("warning: source watcher error: %v", err)
		}
	}
}

func (s *SourceSyncer) handleEvent(event fsnotify.Event) {
	// New directories need their own watch to pick up nested changes.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watcher.Add(event.Name); err != nil {
				log.Printf("warning: failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		s.mu.Lock()
		s.pending = true
		s.mu.Unlock()
	}
}

func (s *SourceSyncer) debounceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *SourceSyncer) flush() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	if err := s.uploader.UploadSources(ctx, s.workspaceID, s.sources); err != nil {
		log.Printf("warning: source sync failed: %v", err)
	}
}
