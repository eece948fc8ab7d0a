// Package queue implements the file-backed task store. Each status owns a
// directory; each task is one markdown file with YAML front matter.
package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexuscli/nexus/pkg/models"
)

// Store is the narrow persistence contract the orchestrator depends on.
type Store interface {
	// Get returns the task with the given id, or nil if absent.
	Get(id string) (*models.Task, error)
	// List returns all tasks in a status, sorted by creation time.
	List(status models.TaskStatus) ([]*models.Task, error)
	// Move relocates a task to a new status, appending a move activity entry.
	Move(id string, status models.TaskStatus, role, detail string) (*models.Task, error)
	// Update rewrites a task in place (last write wins).
	Update(task *models.Task) error
}

// Compile-time verification that Queue implements Store.
var _ Store = (*Queue)(nil)

// Queue is the directory-per-status task store.
type Queue struct {
	basePath string
	dirs     map[models.TaskStatus]string
}

// statusDirs maps statuses to their on-disk directory names. The intake
// directory is called "inbox" because that is what producers write into.
var statusDirs = map[models.TaskStatus]string{
	models.TaskStatusIntake:  "inbox",
	models.TaskStatusBacklog: "backlog",
	models.TaskStatusActive:  "active",
	models.TaskStatusDone:    "done",
}

// New creates a queue rooted at basePath, creating the status directories.
func New(basePath string) (*Queue, error) {
	q := &Queue{
		basePath: basePath,
		dirs:     make(map[models.TaskStatus]string, len(statusDirs)),
	}
	for status, name := range statusDirs {
		dir := filepath.Join(basePath, "tasks", name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
		}
		q.dirs[status] = dir
	}
	return q, nil
}

// InboxDir returns the directory watched for new task files.
func (q *Queue) InboxDir() string {
	return q.dirs[models.TaskStatusIntake]
}

// Add writes a task into the directory of its current status and returns
// the file path.
func (q *Queue) Add(task *models.Task) (string, error) {
	dir, ok := q.dirs[task.Status]
	if !ok {
		return "", fmt.Errorf("unknown status %q", task.Status)
	}

	doc, err := task.ToMarkdown()
	if err != nil {
		return "", fmt.Errorf("render task %s: %w", task.ID, err)
	}

	path := filepath.Join(dir, task.ID+"_"+task.Slug()+".md")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("write task %s: %w", task.ID, err)
	}
	return path, nil
}

// Get implements Store. It searches every status directory.
func (q *Queue) Get(id string) (*models.Task, error) {
	path := q.findFile(id)
	if path == "" {
		return nil, nil
	}
	return q.loadFile(path)
}

// List implements Store.
func (q *Queue) List(status models.TaskStatus) ([]*models.Task, error) {
	dir, ok := q.dirs[status]
	if !ok {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", status, err)
	}

	var tasks []*models.Task
	for _, path := range paths {
		task, err := q.loadFile(path)
		if err != nil {
			// Skip unreadable files rather than failing the whole listing.
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Move implements Store.
func (q *Queue) Move(id string, status models.TaskStatus, role, detail string) (*models.Task, error) {
	if _, ok := q.dirs[status]; !ok {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	task, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}

	oldPath := q.findFile(id)
	oldStatus := task.Status
	task.Status = status
	task.AddActivity(fmt.Sprintf("moved from %s to %s", oldStatus, status), role, detail)

	if _, err := q.Add(task); err != nil {
		return nil, err
	}
	if oldPath != "" {
		os.Remove(oldPath)
	}
	return task, nil
}

// Update implements Store. Last write wins.
func (q *Queue) Update(task *models.Task) error {
	oldPath := q.findFile(task.ID)

	newPath, err := q.Add(task)
	if err != nil {
		return err
	}
	if oldPath != "" && oldPath != newPath {
		os.Remove(oldPath)
	}
	return nil
}

// Counts returns the number of tasks per status.
func (q *Queue) Counts() map[models.TaskStatus]int {
	counts := make(map[models.TaskStatus]int, len(q.dirs))
	for status, dir := range q.dirs {
		paths, _ := filepath.Glob(filepath.Join(dir, "*.md"))
		counts[status] = len(paths)
	}
	return counts
}

// TaskIDFromPath extracts the task id from a queue file path, or "" if the
// name does not match the <id>_<slug>.md layout.
func TaskIDFromPath(path string) string {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".md") {
		return ""
	}
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return ""
}

// findFile locates the file holding a task id in any status directory.
func (q *Queue) findFile(id string) string {
	for _, dir := range q.dirs {
		paths, _ := filepath.Glob(filepath.Join(dir, id+"_*.md"))
		if len(paths) > 0 {
			return paths[0]
		}
	}
	return ""
}

func (q *Queue) loadFile(path string) (*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	task, err := models.FromMarkdown(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return task, nil
}
