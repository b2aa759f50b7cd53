package graph

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a Retriever when its graph file is rewritten by an
// external tool, such as the ingest command running alongside the chat
// process.
type Watcher struct {
	retriever *Retriever
	watcher   *fsnotify.Watcher
	done      chan struct{}
	logger    *logrus.Logger
}

// NewWatcher creates a watcher for the retriever's graph file.
func NewWatcher(r *Retriever, logger *logrus.Logger) *Watcher {
	return &Watcher{
		retriever: r,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins watching the directory containing the graph file. The
// directory is watched rather than the file because atomic rename
// replaces the inode. Call Stop to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.retriever.graphPath)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	go w.loop()
	w.logger.WithField("path", w.retriever.graphPath).Info("graph: watching for external updates")
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	target := filepath.Clean(w.retriever.graphPath)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.logger.Debug("graph: graph file changed, reloading")
				w.retriever.Reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("graph: watcher error")
		}
	}
}
