package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToMarkdown renders the task as a markdown document with YAML front matter.
// The front matter carries all metadata including the activity log; the body
// carries the title heading, the description, and human-readable sections.
func (t *Task) ToMarkdown() (string, error) {
	fm, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString("# " + t.Title + "\n\n")
	if t.Description != "" {
		b.WriteString(t.Description + "\n\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance Criteria\n\n")
		for _, c := range t.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n")
	}

	if len(t.Activity) > 0 {
		b.WriteString("## Activity\n\n")
		for _, e := range t.Activity {
			b.WriteString(fmt.Sprintf("- **%s** [%s] %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Role, e.Action))
			if e.Detail != "" {
				b.WriteString(": " + e.Detail)
			}
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// FromMarkdown parses a task from a markdown document. Documents without
// front matter are accepted: the first heading becomes the title and the
// rest the description, producing a fresh intake task.
func FromMarkdown(content string) (*Task, error) {
	if !strings.HasPrefix(content, "---") {
		lines := strings.Split(strings.TrimSpace(content), "\n")
		title := "Untitled"
		if len(lines) > 0 && lines[0] != "" {
			title = strings.TrimSpace(strings.TrimPrefix(lines[0], "#"))
		}
		description := ""
		if len(lines) > 1 {
			description = strings.TrimSpace(strings.Join(lines[1:], "\n"))
		}
		return NewTask(title, description), nil
	}

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid task document: unterminated front matter")
	}

	t := &Task{}
	if err := yaml.Unmarshal([]byte(parts[1]), t); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("invalid task document: missing id")
	}
	if t.Status == "" {
		t.Status = TaskStatusIntake
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("invalid task document: unknown status %q", t.Status)
	}

	t.Description = extractDescription(parts[2])
	return t, nil
}

// extractDescription returns the text between the title heading and the
// first section heading in the markdown body.
func extractDescription(body string) string {
	var out []string
	inBody := false
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "# "):
			inBody = true
		case strings.HasPrefix(line, "## "):
			return strings.TrimSpace(strings.Join(out, "\n"))
		case inBody:
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
