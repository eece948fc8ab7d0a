package orchestrator

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/nexuscli/nexus/internal/queue"
)

// Watcher is the detection worker: it blocks on filesystem events for the
// inbox directory and enqueues task ids onto a bounded channel. The
// orchestrator's main flow is the sole consumer; events that arrive before
// the consumer starts sit in the channel buffer, never dropped.
type Watcher struct {
	fs   *fsnotify.Watcher
	out  chan<- string
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching inboxDir for task files and forwarding task
// ids to out.
func NewWatcher(inboxDir string, out chan<- string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(inboxDir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", inboxDir, err)
	}

	w := &Watcher{fs: fs, out: out, done: make(chan struct{})}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// run forwards create/write events on *.md files as task ids.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			id := queue.TaskIDFromPath(event.Name)
			if id == "" {
				log.Printf("[watcher] ignoring %s: name does not carry a task id", event.Name)
				continue
			}
			select {
			case w.out <- id:
			case <-w.done:
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

// Close stops the watcher and waits for its worker to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
