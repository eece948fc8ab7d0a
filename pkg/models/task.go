// Package models defines the shared task model used across Nexus.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current pipeline stage of a task.
type TaskStatus string

const (
	// TaskStatusIntake indicates the task has arrived but not been triaged.
	TaskStatusIntake TaskStatus = "intake"
	// TaskStatusBacklog indicates the task has been accepted into the backlog.
	TaskStatusBacklog TaskStatus = "backlog"
	// TaskStatusActive indicates the task is being worked on.
	TaskStatusActive TaskStatus = "active"
	// TaskStatusDone indicates the task completed.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusIntake, TaskStatusBacklog, TaskStatusActive, TaskStatusDone:
		return true
	default:
		return false
	}
}

// AllStatuses returns every task status in pipeline order.
func AllStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusIntake, TaskStatusBacklog, TaskStatusActive, TaskStatusDone}
}

// ActivityEntry records one completed action on a task.
type ActivityEntry struct {
	// Timestamp is when the action happened.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Action is a short label such as "processed by communications".
	Action string `yaml:"action" json:"action"`
	// Role is the role that performed the action.
	Role string `yaml:"role" json:"role"`
	// Detail is optional free text, typically a result excerpt.
	Detail string `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// Task represents a unit of work flowing through the pipeline.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `yaml:"id" json:"id"`
	// Title is the short description of the task.
	Title string `yaml:"title" json:"title"`
	// Description provides detailed information about the task.
	// It lives in the markdown body, not the front matter.
	Description string `yaml:"-" json:"description,omitempty"`
	// Status is the current pipeline stage of the task.
	Status TaskStatus `yaml:"status" json:"status"`
	// Priority is a free-form priority label.
	Priority string `yaml:"priority,omitempty" json:"priority,omitempty"`
	// Tags lists free-form labels attached to the task.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// AssignedRole is the role currently responsible for the task, if any.
	AssignedRole string `yaml:"assigned_role,omitempty" json:"assigned_role,omitempty"`
	// AcceptanceCriteria defines the criteria for task completion.
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
	// Activity is the append-only log of actions taken on this task.
	Activity []ActivityEntry `yaml:"activity,omitempty" json:"activity,omitempty"`
}

// NewTask creates a task in intake with a fresh short id.
func NewTask(title, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New().String()[:8],
		Title:       title,
		Description: description,
		Status:      TaskStatusIntake,
		Priority:    "medium",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AddActivity appends an activity entry and bumps UpdatedAt.
func (t *Task) AddActivity(action, role, detail string) {
	now := time.Now()
	t.Activity = append(t.Activity, ActivityEntry{
		Timestamp: now,
		Action:    action,
		Role:      role,
		Detail:    detail,
	})
	t.UpdatedAt = now
}

// ProcessedAction is the activity action prefix recorded when a role
// completes its stage pass over a task.
const ProcessedAction = "processed by "

// ProcessedBy reports whether the activity log contains a completed stage
// pass for the given role. This is recomputed from the log on every call;
// it is the sole idempotency signal for the stage runner.
func (t *Task) ProcessedBy(role string) bool {
	want := ProcessedAction + role
	for _, e := range t.Activity {
		if strings.HasPrefix(e.Action, want) {
			return true
		}
	}
	return false
}

// Slug returns a filesystem-friendly form of the title.
func (t *Task) Slug() string {
	s := strings.ToLower(strings.TrimSpace(t.Title))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	if s == "" {
		s = "untitled"
	}
	return s
}
