package gtasks

import (
	"encoding/json"
	"strings"
	"time"

	"gtasksync/store"
)

// Google Tasks models only title, notes, due (date) and a two-state status.
// The richer task fields ride along in a metadata trailer appended to the
// notes field, so a round trip through Google loses nothing.
const metadataMarker = "\n\n--gtasksync--\n"

// taskMetadata is the JSON trailer carried inside notes.
type taskMetadata struct {
	Status            store.Status   `json:"status,omitempty"`
	Priority          store.Priority `json:"priority,omitempty"`
	Project           string         `json:"project,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Dependencies      []string       `json:"dependencies,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	RecurrenceRule    string         `json:"recurrence_rule,omitempty"`
	RecurringTaskID   string         `json:"recurring_task_id,omitempty"`
	EstimatedDuration int            `json:"estimated_duration,omitempty"`
	ActualDuration    int            `json:"actual_duration,omitempty"`
	DueTime           string         `json:"due_time,omitempty"` // Google keeps only the date part
}

// ToTask converts a wire resource into the model. listID/listTitle name the
// list the resource was fetched from.
func ToTask(res TaskResource, listID, listTitle string) store.Task {
	task := store.Task{
		ID:         res.ID,
		Title:      res.Title,
		TasklistID: listID,
		ListTitle:  listTitle,
		Position:   res.Position,
		Priority:   store.PriorityMedium,
	}

	description, meta := splitNotes(res.Notes)
	task.Description = description

	switch {
	case res.Deleted:
		task.Status = store.StatusDeleted
	case res.Status == wireStatusCompleted:
		task.Status = store.StatusCompleted
	default:
		task.Status = store.StatusPending
	}

	if meta != nil {
		// The trailer refines the coarse wire status: needsAction may
		// really be in_progress or waiting.
		if meta.Status.Valid() && !res.Deleted && res.Status != wireStatusCompleted {
			task.Status = meta.Status
		}
		if meta.Priority.Valid() {
			task.Priority = meta.Priority
		}
		task.Project = meta.Project
		task.Tags = meta.Tags
		task.Dependencies = meta.Dependencies
		task.Notes = meta.Notes
		task.RecurrenceRule = meta.RecurrenceRule
		task.RecurringTaskID = meta.RecurringTaskID
		task.IsRecurring = meta.RecurrenceRule != ""
		task.EstimatedDuration = meta.EstimatedDuration
		task.ActualDuration = meta.ActualDuration
	}

	if res.Due != "" {
		if due, err := parseWireTime(res.Due); err == nil {
			// Google truncates due to a date; the trailer restores the
			// original time of day when one was set.
			if meta != nil && meta.DueTime != "" {
				if full, err := parseWireTime(meta.DueTime); err == nil {
					due = full
				}
			}
			task.Due = &due
		}
	}

	if t, err := parseWireTime(res.Updated); err == nil {
		task.ModifiedAt = t
	}
	if res.Completed != "" {
		if t, err := parseWireTime(res.Completed); err == nil && task.Status == store.StatusCompleted {
			task.CompletedAt = &t
		}
	}
	return task
}

// FromTask converts a model task into the wire resource for insert.
func FromTask(task store.Task) TaskResource {
	res := TaskResource{
		ID:    task.ID,
		Title: task.Title,
		Notes: packNotes(task),
	}

	switch task.Status {
	case store.StatusCompleted:
		res.Status = wireStatusCompleted
		if task.CompletedAt != nil {
			res.Completed = task.CompletedAt.UTC().Format(time.RFC3339)
		}
	case store.StatusDeleted:
		res.Status = wireStatusNeedsAction
		res.Deleted = true
	default:
		res.Status = wireStatusNeedsAction
	}

	if task.Due != nil {
		res.Due = task.Due.UTC().Format(time.RFC3339)
	}
	return res
}

// PatchFields builds the sparse field set for tasks.patch from a resolved
// task.
func PatchFields(task store.Task) map[string]interface{} {
	fields := map[string]interface{}{
		"title": task.Title,
		"notes": packNotes(task),
	}
	if task.Status == store.StatusCompleted {
		fields["status"] = wireStatusCompleted
		if task.CompletedAt != nil {
			fields["completed"] = task.CompletedAt.UTC().Format(time.RFC3339)
		}
	} else {
		fields["status"] = wireStatusNeedsAction
		fields["completed"] = nil
	}
	if task.Due != nil {
		fields["due"] = task.Due.UTC().Format(time.RFC3339)
	} else {
		fields["due"] = nil
	}
	return fields
}

func packNotes(task store.Task) string {
	meta := taskMetadata{
		Status:            task.Status,
		Priority:          task.Priority,
		Project:           task.Project,
		Tags:              task.Tags,
		Dependencies:      task.Dependencies,
		Notes:             task.Notes,
		RecurrenceRule:    task.RecurrenceRule,
		RecurringTaskID:   task.RecurringTaskID,
		EstimatedDuration: task.EstimatedDuration,
		ActualDuration:    task.ActualDuration,
	}
	if task.Due != nil && !isMidnightUTC(*task.Due) {
		meta.DueTime = task.Due.UTC().Format(time.RFC3339)
	}

	if isPlainTask(meta) {
		return task.Description
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return task.Description
	}
	return task.Description + metadataMarker + string(data)
}

// isPlainTask reports whether the metadata trailer would carry nothing a
// plain Google task cannot express already.
func isPlainTask(meta taskMetadata) bool {
	return (meta.Status == store.StatusPending || meta.Status == store.StatusCompleted) &&
		meta.Priority == store.PriorityMedium &&
		meta.Project == "" && len(meta.Tags) == 0 && len(meta.Dependencies) == 0 &&
		meta.Notes == "" && meta.RecurrenceRule == "" && meta.RecurringTaskID == "" &&
		meta.EstimatedDuration == 0 && meta.ActualDuration == 0 && meta.DueTime == ""
}

func splitNotes(notes string) (string, *taskMetadata) {
	idx := strings.LastIndex(notes, metadataMarker)
	if idx < 0 {
		return notes, nil
	}
	var meta taskMetadata
	if err := json.Unmarshal([]byte(notes[idx+len(metadataMarker):]), &meta); err != nil {
		return notes, nil
	}
	return notes[:idx], &meta
}

func parseWireTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC().Truncate(time.Second), nil
}

func isMidnightUTC(t time.Time) bool {
	t = t.UTC()
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
