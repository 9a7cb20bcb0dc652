package store

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task. The literals are stored verbatim
// in the database and on the wire, so they must never change meaning.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusWaiting    Status = "waiting"
	StatusDeleted    Status = "deleted"
)

// ParseStatus converts user or wire input to a canonical Status.
// Common abbreviations are accepted the same way status flags are parsed
// for task filters.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "pending", "todo", "needsaction", "needs-action":
		return StatusPending, nil
	case "i", "in_progress", "in-progress", "inprogress", "processing":
		return StatusInProgress, nil
	case "c", "completed", "done":
		return StatusCompleted, nil
	case "w", "waiting":
		return StatusWaiting, nil
	case "d", "deleted":
		return StatusDeleted, nil
	default:
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q (valid: pending, in_progress, completed, waiting, deleted)", s)}
	}
}

// Valid reports whether s is one of the canonical status literals.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusWaiting, StatusDeleted:
		return true
	}
	return false
}

// Rank orders statuses by how far a task has advanced. Used by the conflict
// resolver to promote the more advanced status when versions diverge.
// deleted ranks lowest: a deletion only wins on a strictly newer timestamp.
func (s Status) Rank() int {
	switch s {
	case StatusCompleted:
		return 4
	case StatusInProgress:
		return 3
	case StatusWaiting:
		return 2
	case StatusPending:
		return 1
	case StatusDeleted:
		return 0
	}
	return -1
}

// Priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority converts user input to a canonical Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "medium":
		return PriorityMedium, nil
	case "l", "low":
		return PriorityLow, nil
	case "h", "high":
		return PriorityHigh, nil
	case "critical", "crit":
		return PriorityCritical, nil
	default:
		return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q (valid: low, medium, high, critical)", s)}
	}
}

// Valid reports whether p is one of the canonical priority literals.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Task is the central entity of an account. All timestamps are UTC.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`

	Project      string   `json:"project,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	TasklistID string `json:"tasklist_id,omitempty"`
	ListTitle  string `json:"list_title,omitempty"`
	Position   string `json:"position,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RecurrenceRule  string `json:"recurrence_rule,omitempty"`
	IsRecurring     bool   `json:"is_recurring,omitempty"`
	RecurringTaskID string `json:"recurring_task_id,omitempty"`

	EstimatedDuration int `json:"estimated_duration,omitempty"` // minutes
	ActualDuration    int `json:"actual_duration,omitempty"`    // minutes
}

// Normalize brings a task into canonical form: UTC timestamps, de-duplicated
// tags (first occurrence wins), default priority, and completed_at kept
// consistent with status.
func (t *Task) Normalize(now time.Time) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.Tags = dedupeStrings(t.Tags)
	t.Dependencies = dedupeStrings(t.Dependencies)

	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if !t.ModifiedAt.IsZero() {
		t.ModifiedAt = t.ModifiedAt.UTC()
	}
	if t.Due != nil {
		d := t.Due.UTC()
		t.Due = &d
	}

	switch t.Status {
	case StatusCompleted:
		if t.CompletedAt == nil {
			c := now
			t.CompletedAt = &c
		} else {
			c := t.CompletedAt.UTC()
			t.CompletedAt = &c
		}
	default:
		t.CompletedAt = nil
	}
}

// Validate checks the task invariants that must hold before persisting.
func (t Task) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "task id is required"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Message: "task title must not be empty"}
	}
	if !t.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", t.Status)}
	}
	if !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", t.Priority)}
	}
	if t.Status == StatusCompleted && t.CompletedAt == nil {
		return &ValidationError{Field: "completed_at", Message: "completed task must carry a completion timestamp"}
	}
	if t.Status != StatusCompleted && t.CompletedAt != nil {
		return &ValidationError{Field: "completed_at", Message: "completion timestamp set on a non-completed task"}
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return &ValidationError{Field: "dependencies", Message: "task cannot depend on itself"}
		}
	}
	return nil
}

// CheckDependencies verifies that every dependency of task references an id
// present in all (or the task itself being updated) and that the resulting
// graph stays acyclic. all maps id -> dependency ids for the whole account.
func CheckDependencies(task Task, all map[string][]string) error {
	for _, dep := range task.Dependencies {
		if dep == task.ID {
			return &ValidationError{Field: "dependencies", Message: "task cannot depend on itself"}
		}
		if _, ok := all[dep]; !ok {
			return &ValidationError{Field: "dependencies", Message: fmt.Sprintf("dependency %q does not exist", dep)}
		}
	}

	// DFS from the changed task over the graph with the change applied.
	graph := make(map[string][]string, len(all)+1)
	for id, deps := range all {
		graph[id] = deps
	}
	graph[task.ID] = task.Dependencies

	const (
		unseen = 0
		open   = 1
		closed = 2
	)
	state := make(map[string]int, len(graph))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case open:
			return true // back edge, cycle
		case closed:
			return false
		}
		state[id] = open
		for _, dep := range graph[id] {
			if visit(dep) {
				return true
			}
		}
		state[id] = closed
		return false
	}

	if visit(task.ID) {
		return &ValidationError{Field: "dependencies", Message: fmt.Sprintf("dependency cycle involving task %q", task.ID)}
	}
	return nil
}

// TaskList groups tasks; a task belongs to exactly one list.
type TaskList struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Updated  time.Time `json:"updated"`
	Position string    `json:"position,omitempty"`
	ETag     string    `json:"etag,omitempty"`
}

// TaskFilter narrows LoadTasks results. Nil fields are ignored.
type TaskFilter struct {
	Statuses      *[]Status
	TasklistID    string
	ModifiedSince *time.Time
}

// RemoteDBConfig describes one replicated remote database of an account.
// A deactivated remote is skipped during sync but never removed implicitly.
type RemoteDBConfig struct {
	ID                   string     `json:"id"`
	URL                  string     `json:"url" validate:"required,url"`
	Name                 string     `json:"name"`
	Token                string     `json:"token,omitempty"`
	IsActive             bool       `json:"is_active"`
	AutoSync             bool       `json:"auto_sync"`
	SyncFrequencyMinutes int        `json:"sync_frequency_minutes,omitempty" validate:"gte=0"`
	LastSyncedAt         *time.Time `json:"last_synced_at,omitempty"`
}

// DeletionEntry is one append-only record of an observed deletion.
type DeletionEntry struct {
	Seq         int64      `json:"seq"`
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	Status      Status     `json:"status"`
	DeletedAt   time.Time  `json:"deleted_at"`
	DeletedBy   string     `json:"deleted_by"`
	TasklistID  string     `json:"tasklist_id,omitempty"`
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
