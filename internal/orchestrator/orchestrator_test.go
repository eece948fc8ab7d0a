package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nexuscli/nexus/internal/archive"
	"github.com/nexuscli/nexus/internal/queue"
	"github.com/nexuscli/nexus/internal/router"
	"github.com/nexuscli/nexus/pkg/models"
)

// fakeCompleter records completion calls and can fail selected roles.
type fakeCompleter struct {
	mu       sync.Mutex
	calls    []string
	failRole string
}

func (f *fakeCompleter) Complete(_ context.Context, role, prompt string) (router.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, role)
	if role == f.failRole {
		return router.Result{}, fmt.Errorf("provider chain exhausted for %s", role)
	}
	return router.Result{
		Text:     "result from " + role,
		Provider: "groq",
		Model:    "llama-3.1-8b-instant",
		Tokens:   42,
	}, nil
}

func (f *fakeCompleter) callRoles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type countingSink struct {
	mu    sync.Mutex
	posts int
}

func (c *countingSink) Post(_ context.Context, _ string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts++
	return nil
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posts
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.New(t.TempDir())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return q
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func runOrchestrator(t *testing.T, o *Orchestrator) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("orchestrator did not stop")
		}
	})
	return cancel
}

func TestRunAdvancesTaskThroughStages(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	sink := &countingSink{}

	o := New(Config{Stages: []string{"communications", "senior_dev"}}, q, completer,
		WithNotifier(sink))

	task := models.NewTask("Ship login page", "Implement the login form")
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)
	o.Enqueue(task.ID)

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.ProcessedBy("senior_dev")
	}, "both stages to complete")

	got, err := q.Get(task.ID)
	if err != nil || got == nil {
		t.Fatalf("Get after processing: task=%v err=%v", got, err)
	}
	if got.Status != models.TaskStatusBacklog {
		t.Errorf("status = %s, want %s", got.Status, models.TaskStatusBacklog)
	}
	if !got.ProcessedBy("communications") {
		t.Errorf("communications stage not recorded")
	}

	// Stage entries must appear in pipeline order.
	var roles []string
	for _, entry := range got.Activity {
		if entry.Role == "communications" || entry.Role == "senior_dev" {
			roles = append(roles, entry.Role)
		}
	}
	if len(roles) != 2 || roles[0] != "communications" || roles[1] != "senior_dev" {
		t.Errorf("stage order = %v, want [communications senior_dev]", roles)
	}

	waitFor(t, func() bool { return sink.count() == 2 }, "two notifications")
}

func TestRunPromotesIntakeToBacklog(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	o := New(Config{Stages: []string{"communications"}}, q, completer)

	task := models.NewTask("Intake task", "")
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)
	o.Enqueue(task.ID)

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.Status == models.TaskStatusBacklog
	}, "promotion to backlog")

	got, _ := q.Get(task.ID)
	found := false
	for _, entry := range got.Activity {
		if entry.Action == "moved from intake to backlog" && entry.Role == "orchestrator" {
			found = true
		}
	}
	if !found {
		t.Errorf("promotion activity entry missing: %+v", got.Activity)
	}
}

func TestRunSkipsAlreadyProcessedStages(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	o := New(Config{Stages: []string{"communications", "senior_dev"}}, q, completer)

	task := models.NewTask("Half done", "")
	task.Status = models.TaskStatusBacklog
	task.AddActivity(models.ProcessedAction+"communications", "communications", "earlier run")
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)
	o.Enqueue(task.ID)

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.ProcessedBy("senior_dev")
	}, "remaining stage to complete")

	for _, role := range completer.callRoles() {
		if role == "communications" {
			t.Errorf("completed stage was re-executed")
		}
	}
}

func TestRunStopsAtFailedStage(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{failRole: "senior_dev"}
	o := New(Config{Stages: []string{"communications", "senior_dev", "release_qa"}}, q, completer)

	task := models.NewTask("Flaky", "")
	task.Status = models.TaskStatusBacklog
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)
	o.Enqueue(task.ID)

	waitFor(t, func() bool {
		for _, role := range completer.callRoles() {
			if role == "senior_dev" {
				return true
			}
		}
		return false
	}, "failing stage to be attempted")

	// Give the stage loop a moment to (incorrectly) continue.
	time.Sleep(100 * time.Millisecond)

	got, _ := q.Get(task.ID)
	if !got.ProcessedBy("communications") {
		t.Errorf("stage before failure not recorded")
	}
	if got.ProcessedBy("senior_dev") {
		t.Errorf("failed stage recorded as processed")
	}
	if got.ProcessedBy("release_qa") {
		t.Errorf("stage after failure was executed")
	}
	for _, role := range completer.callRoles() {
		if role == "release_qa" {
			t.Errorf("stage loop continued past failure")
		}
	}
}

func TestEnqueueBeforeRunIsNotLost(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	o := New(Config{Stages: []string{"communications"}}, q, completer)

	task := models.NewTask("Early bird", "")
	task.Status = models.TaskStatusActive
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Event arrives before the main flow starts consuming.
	o.Enqueue(task.ID)
	runOrchestrator(t, o)

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.ProcessedBy("communications")
	}, "buffered event to be processed")
}

func TestRunArchivesServingRouteAndTokens(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}

	db, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	defer db.Close()

	o := New(Config{Stages: []string{"communications"}}, q, completer, WithArchive(db))

	task := models.NewTask("Archived", "")
	task.Status = models.TaskStatusBacklog
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)
	o.Enqueue(task.ID)

	waitFor(t, func() bool {
		recent, err := db.RecentCompletions(1)
		return err == nil && len(recent) == 1
	}, "completion row to be archived")

	recent, err := db.RecentCompletions(1)
	if err != nil {
		t.Fatalf("RecentCompletions: %v", err)
	}
	got := recent[0]
	if got.TaskID != task.ID || got.Role != "communications" {
		t.Errorf("archived row = %s/%s", got.TaskID, got.Role)
	}
	if got.Provider != "groq" || got.Model != "llama-3.1-8b-instant" {
		t.Errorf("archived route = %s/%s, want groq/llama-3.1-8b-instant", got.Provider, got.Model)
	}
	if got.Tokens != 42 {
		t.Errorf("archived tokens = %d, want 42", got.Tokens)
	}
}

func TestRunSweepsExistingBacklog(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	o := New(Config{Stages: []string{"communications"}}, q, completer)

	task := models.NewTask("Pre-existing", "")
	task.Status = models.TaskStatusBacklog
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	runOrchestrator(t, o)

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.ProcessedBy("communications")
	}, "startup sweep to process backlog task")
}

func TestWatchDetectsNewTaskFiles(t *testing.T) {
	q := newTestQueue(t)
	completer := &fakeCompleter{}
	o := New(Config{Stages: []string{"communications"}}, q, completer)

	if err := o.Watch(q.InboxDir()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer o.Stop()

	runOrchestrator(t, o)

	task := models.NewTask("Dropped in", "arrived via inbox")
	if _, err := q.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	waitFor(t, func() bool {
		got, err := q.Get(task.ID)
		return err == nil && got != nil && got.Status == models.TaskStatusBacklog &&
			got.ProcessedBy("communications")
	}, "watched file to be detected and processed")
}

func TestWatcherIgnoresNonTaskFiles(t *testing.T) {
	dir := t.TempDir()
	events := make(chan string, 4)
	w, err := NewWatcher(dir, events)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "abc12345_fix-bug.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case id := <-events:
		if id != "abc12345" {
			t.Errorf("event id = %q, want abc12345", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for task file")
	}

	// A single write may surface as both a create and a write event, so
	// duplicates of the same id are fine. Other ids are not.
	for {
		select {
		case id := <-events:
			if id != "abc12345" {
				t.Errorf("unexpected event %q", id)
			}
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}
