package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/nexuscli/nexus/internal/archive"
	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/notify"
	"github.com/nexuscli/nexus/internal/queue"
	"github.com/nexuscli/nexus/internal/router"
	"github.com/nexuscli/nexus/pkg/models"
)

// excerptLen bounds the result sample stored in an activity entry.
const excerptLen = 100

// Completer is the router capability the orchestrator depends on.
type Completer interface {
	Complete(ctx context.Context, role, prompt string) (router.Result, error)
}

// Config contains orchestrator settings.
type Config struct {
	// Stages is the ordered role list each task passes through.
	Stages []string
	// MaxConcurrentTasks bounds how many tasks advance at once.
	MaxConcurrentTasks int
	// EventBuffer is the capacity of the detection event channel.
	EventBuffer int
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithNotifier sets the best-effort notification sink.
func WithNotifier(sink notify.Sink) Option {
	return func(o *Orchestrator) { o.notifier = sink }
}

// WithArchive sets the stage completion archive.
func WithArchive(db *archive.DB) Option {
	return func(o *Orchestrator) { o.archive = db }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator drains detection events and advances each detected task
// through the stage pipeline. Stages for one task run strictly in order;
// different tasks advance concurrently up to MaxConcurrentTasks.
type Orchestrator struct {
	cfg       Config
	store     queue.Store
	completer Completer
	notifier  notify.Sink
	archive   *archive.DB
	logger    *DebugLogger

	// events is the bounded, ordered handoff channel from the detection
	// worker into the main flow.
	events  chan string
	watcher *Watcher

	sem       chan struct{}
	mu        sync.Mutex
	taskLocks map[string]*sync.Mutex

	wg sync.WaitGroup
}

// New creates an orchestrator over the given store and completion router.
func New(cfg Config, store queue.Store, completer Completer, opts ...Option) *Orchestrator {
	if len(cfg.Stages) == 0 {
		cfg.Stages = config.DefaultStages()
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 5
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		completer: completer,
		logger:    &DebugLogger{},
		events:    make(chan string, cfg.EventBuffer),
		sem:       make(chan struct{}, cfg.MaxConcurrentTasks),
		taskLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue hands a detection event into the main flow. It blocks when the
// buffer is full rather than dropping the event.
func (o *Orchestrator) Enqueue(id string) {
	o.events <- id
}

// Watch starts the detection worker on the inbox directory. Events observed
// before Run starts consuming are buffered, not lost.
func (o *Orchestrator) Watch(inboxDir string) error {
	if o.watcher != nil {
		return fmt.Errorf("already watching")
	}
	w, err := NewWatcher(inboxDir, o.events)
	if err != nil {
		return err
	}
	o.watcher = w
	return nil
}

// Run is the main cooperative flow. It first sweeps tasks already sitting
// in intake or backlog, then drains detection events until ctx is done.
// It is the sole consumer of the event channel.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Log("orchestrator started: stages=%v workers=%d", o.cfg.Stages, o.cfg.MaxConcurrentTasks)

	for _, status := range []models.TaskStatus{models.TaskStatusIntake, models.TaskStatusBacklog} {
		tasks, err := o.store.List(status)
		if err != nil {
			log.Printf("[orchestrator] sweep %s: %v", status, err)
			continue
		}
		for _, t := range tasks {
			if err := o.dispatch(ctx, t.ID); err != nil {
				o.wg.Wait()
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			return ctx.Err()
		case id := <-o.events:
			if err := o.dispatch(ctx, id); err != nil {
				o.wg.Wait()
				return err
			}
		}
	}
}

// Stop shuts down the detection worker. In-flight stage executions finish
// or are abandoned by the Run context.
func (o *Orchestrator) Stop() error {
	if o.watcher != nil {
		err := o.watcher.Close()
		o.watcher = nil
		return err
	}
	return nil
}

// dispatch acquires a worker slot and processes the event on its own
// goroutine. It blocks when all slots are busy, providing backpressure to
// the event channel.
func (o *Orchestrator) dispatch(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case o.sem <- struct{}{}:
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() { <-o.sem }()

		// Per-task serialization: at most one in-flight stage execution
		// per task id.
		mu := o.lockFor(id)
		mu.Lock()
		defer mu.Unlock()

		o.onDetected(ctx, id)
	}()
	return nil
}

// onDetected handles one detection event: promote intake tasks to backlog,
// then run the stage pipeline.
func (o *Orchestrator) onDetected(ctx context.Context, id string) {
	task, err := o.store.Get(id)
	if err != nil {
		log.Printf("[orchestrator] load task %s: %v", id, err)
		return
	}
	if task == nil {
		o.logger.Log("task %s vanished before processing", id)
		return
	}

	if task.Status == models.TaskStatusIntake {
		task, err = o.store.Move(id, models.TaskStatusBacklog, "orchestrator", "auto-promoted from intake")
		if err != nil {
			log.Printf("[orchestrator] promote task %s: %v", id, err)
			return
		}
		o.logger.Log("task %s promoted to backlog", id)
	}

	if task.Status == models.TaskStatusDone {
		return
	}

	o.runStages(ctx, task)
}

// runStages advances the task through the configured stage list in order.
// Completed stages are detected from the activity log and skipped. A stage
// failure stops the loop without marking anything: the task stays eligible
// for the same stage on the next detection pass.
func (o *Orchestrator) runStages(ctx context.Context, task *models.Task) {
	for _, role := range o.cfg.Stages {
		if ctx.Err() != nil {
			return
		}
		if task.ProcessedBy(role) {
			continue
		}

		res, err := o.completer.Complete(ctx, role, stagePrompt(task, role))
		if err != nil {
			log.Printf("[orchestrator] stage %s failed for task %s: %v", role, task.ID, err)
			o.logger.Log("task %s stopped at stage %s: %v", task.ID, role, err)
			return
		}

		excerpt := truncate(res.Text, excerptLen)
		task.AddActivity(models.ProcessedAction+role, role, excerpt)
		if err := o.store.Update(task); err != nil {
			log.Printf("[orchestrator] persist task %s after %s: %v", task.ID, role, err)
			return
		}

		if o.archive != nil {
			if err := o.archive.RecordCompletion(archive.Completion{
				TaskID:   task.ID,
				Role:     role,
				Provider: res.Provider,
				Model:    res.Model,
				Tokens:   res.Tokens,
				Excerpt:  excerpt,
			}); err != nil {
				log.Printf("[orchestrator] archive task %s: %v", task.ID, err)
			}
		}

		o.notifyAsync(role, fmt.Sprintf("task %s processed by %s", task.ID, role))
		o.logger.Log("task %s processed by %s", task.ID, role)
	}
}

// notifyAsync posts a best-effort notification without blocking the stage
// loop. Failures are logged and never propagated.
func (o *Orchestrator) notifyAsync(role, text string) {
	if o.notifier == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.notifier.Post(context.Background(), role, text); err != nil {
			log.Printf("[orchestrator] notify %s: %v", role, err)
		}
	}()
}

// lockFor returns the serialization mutex for a task id.
func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	mu, ok := o.taskLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		o.taskLocks[id] = mu
	}
	return mu
}

// stagePrompt builds the role-specific prompt from the task's fields.
func stagePrompt(task *models.Task, role string) string {
	return fmt.Sprintf(
		"Task: %s\nDescription: %s\nCurrent Status: %s\n\nPlease process this task according to your role as %s.",
		task.Title, task.Description, task.Status, role,
	)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
