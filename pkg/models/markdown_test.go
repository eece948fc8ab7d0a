package models

import (
	"strings"
	"testing"
	"time"
)

func TestMarkdownRoundTrip(t *testing.T) {
	task := NewTask("Ship release notes", "Write and publish the notes.")
	task.Tags = []string{"docs", "release"}
	task.AcceptanceCriteria = []string{"notes published"}
	task.AddActivity("moved from intake to backlog", "orchestrator", "auto-promoted")
	task.AddActivity("processed by communications", "communications", "drafted announcement")

	doc, err := task.ToMarkdown()
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}

	got, err := FromMarkdown(doc)
	if err != nil {
		t.Fatalf("FromMarkdown: %v", err)
	}

	if got.ID != task.ID {
		t.Errorf("ID = %q, want %q", got.ID, task.ID)
	}
	if got.Status != task.Status {
		t.Errorf("Status = %q, want %q", got.Status, task.Status)
	}
	if got.Description != task.Description {
		t.Errorf("Description = %q, want %q", got.Description, task.Description)
	}
	if len(got.Activity) != 2 {
		t.Fatalf("Activity length = %d, want 2", len(got.Activity))
	}
	if got.Activity[0].Action != "moved from intake to backlog" {
		t.Errorf("Activity[0].Action = %q", got.Activity[0].Action)
	}
	if !got.ProcessedBy("communications") {
		t.Error("stage pass should survive the round trip")
	}
}

func TestFromMarkdownWithoutFrontMatter(t *testing.T) {
	got, err := FromMarkdown("# Quick idea\n\nJust a thought.")
	if err != nil {
		t.Fatalf("FromMarkdown: %v", err)
	}

	if got.Title != "Quick idea" {
		t.Errorf("Title = %q, want %q", got.Title, "Quick idea")
	}
	if got.Description != "Just a thought." {
		t.Errorf("Description = %q", got.Description)
	}
	if got.Status != TaskStatusIntake {
		t.Errorf("Status = %q, want intake", got.Status)
	}
	if got.ID == "" {
		t.Error("parser should assign a fresh id")
	}
}

func TestFromMarkdownInvalid(t *testing.T) {
	if _, err := FromMarkdown("---\nid: abc\n"); err == nil {
		t.Error("unterminated front matter should fail")
	}
	if _, err := FromMarkdown("---\ntitle: no id\n---\n# no id\n"); err == nil {
		t.Error("missing id should fail")
	}
	if _, err := FromMarkdown("---\nid: abc\nstatus: sprint\n---\n# bad\n"); err == nil {
		t.Error("unknown status should fail")
	}
}

func TestToMarkdownSections(t *testing.T) {
	task := NewTask("Sectioned", "body text")
	task.AcceptanceCriteria = []string{"a", "b"}
	task.AddActivity("processed by review", "review", "looks good")
	task.Activity[0].Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	doc, err := task.ToMarkdown()
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}

	for _, want := range []string{"## Acceptance Criteria", "- a", "## Activity", "[review] processed by review: looks good"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}
