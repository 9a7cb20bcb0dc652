package store

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"p", StatusPending, false},
		{"needsAction", StatusPending, false},
		{"in_progress", StatusInProgress, false},
		{"in-progress", StatusInProgress, false},
		{"done", StatusCompleted, false},
		{"COMPLETED", StatusCompleted, false},
		{"waiting", StatusWaiting, false},
		{"deleted", StatusDeleted, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusRankOrdering(t *testing.T) {
	order := []Status{StatusDeleted, StatusPending, StatusWaiting, StatusInProgress, StatusCompleted}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Rank(%s)=%d should exceed Rank(%s)=%d",
				order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	task := Task{
		ID:    "n1",
		Title: "  spaced  ",
		Tags:  []string{"a", "a", " b ", ""},
	}
	task.Normalize(now)

	if task.Title != "spaced" {
		t.Errorf("title = %q, want trimmed", task.Title)
	}
	if task.Status != StatusPending || task.Priority != PriorityMedium {
		t.Errorf("defaults not applied: status=%s priority=%s", task.Status, task.Priority)
	}
	if len(task.Tags) != 2 || task.Tags[0] != "a" || task.Tags[1] != "b" {
		t.Errorf("tags = %v, want deduped [a b]", task.Tags)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", task.CreatedAt, now)
	}

	completed := Task{ID: "n2", Title: "done", Status: StatusCompleted}
	completed.Normalize(now)
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(now) {
		t.Errorf("completed_at = %v, want stamped", completed.CompletedAt)
	}

	// Flipping back to pending drops the completion timestamp.
	completed.Status = StatusPending
	completed.Normalize(now)
	if completed.CompletedAt != nil {
		t.Errorf("completed_at should be cleared on non-completed task")
	}
}

func TestValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := Task{ID: "v1", Title: "ok", Status: StatusPending, Priority: PriorityMedium, CreatedAt: now}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	tests := []struct {
		name string
		task Task
	}{
		{"missing id", Task{Title: "x", Status: StatusPending, Priority: PriorityMedium}},
		{"empty title", Task{ID: "x", Title: " ", Status: StatusPending, Priority: PriorityMedium}},
		{"bad status", Task{ID: "x", Title: "x", Status: "nope", Priority: PriorityMedium}},
		{"bad priority", Task{ID: "x", Title: "x", Status: StatusPending, Priority: "nope"}},
		{"completed without timestamp", Task{ID: "x", Title: "x", Status: StatusCompleted, Priority: PriorityMedium}},
		{"self dependency", Task{ID: "x", Title: "x", Status: StatusPending, Priority: PriorityMedium, Dependencies: []string{"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.task.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCheckDependencies(t *testing.T) {
	all := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	}

	ok := Task{ID: "d", Dependencies: []string{"a"}}
	if err := CheckDependencies(ok, all); err != nil {
		t.Errorf("acyclic graph rejected: %v", err)
	}

	// c -> a closes the loop a -> b -> c -> a.
	cycle := Task{ID: "c", Dependencies: []string{"a"}}
	if err := CheckDependencies(cycle, all); err == nil {
		t.Error("expected cycle detection")
	}

	missing := Task{ID: "d", Dependencies: []string{"zzz"}}
	if err := CheckDependencies(missing, all); err == nil {
		t.Error("expected unknown dependency rejection")
	}
}
