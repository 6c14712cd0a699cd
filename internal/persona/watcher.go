package persona

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
)

// Watcher reloads a Source whenever its persona file changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	source  *Source
	file    string
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher for src. Returns nil if src has no file.
func NewWatcher(src *Source) (*Watcher, error) {
	if src.Path() == "" {
		return nil, nil
	}

	file, err := filepath.Abs(src.Path())
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory; editors often replace the file by rename.
	if err := w.Add(filepath.Dir(file)); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		source:  src,
		file:    file,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	log := logging.Component("persona")

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(ev.Name) != w.file {
				continue
			}
			if err := w.source.Reload(); err != nil {
				log.Warn().Err(err).Str("file", w.file).Msg("persona reload failed, keeping previous")
				continue
			}
			log.Info().Str("file", w.file).Str("persona", w.source.Current().Name).Msg("persona reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("persona watcher error")
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
