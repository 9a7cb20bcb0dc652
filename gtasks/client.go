package gtasks

import (
	"net/http"
	"net/url"
	"time"

	"gtasksync/store"
)

// Service is the upstream surface the sync engine depends on. Tests
// substitute a fake; production uses *Client.
type Service interface {
	ListTasklists() ([]TaskListResource, error)
	InsertTasklist(title string) (*TaskListResource, error)
	DeleteTasklist(listID string) error
	ListTasks(listID string, opts ListTasksOptions) ([]TaskResource, error)
	GetTask(listID, taskID string) (*TaskResource, error)
	InsertTask(listID string, task TaskResource) (*TaskResource, error)
	PatchTask(listID, taskID string, fields map[string]interface{}) (*TaskResource, error)
	DeleteTask(listID, taskID string) error
}

// ListTasksOptions bounds one tasks.list call. A nil UpdatedMin means a
// full pull.
type ListTasksOptions struct {
	UpdatedMin       *time.Time
	IncludeCompleted bool
	IncludeHidden    bool
	IncludeDeleted   bool
}

// ListTasklists fetches all task lists, following pagination.
func (c *Client) ListTasklists() ([]TaskListResource, error) {
	var lists []TaskListResource
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("maxResults", "100")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page taskListsResponse
		if err := c.doRequest("ListTasklists", http.MethodGet, "/users/@me/lists", query, nil, &page); err != nil {
			return nil, err
		}
		lists = append(lists, page.Items...)
		if page.NextPageToken == "" {
			return lists, nil
		}
		pageToken = page.NextPageToken
	}
}

// InsertTasklist creates a new task list.
func (c *Client) InsertTasklist(title string) (*TaskListResource, error) {
	var created TaskListResource
	err := c.doRequest("InsertTasklist", http.MethodPost, "/users/@me/lists", nil,
		TaskListResource{Title: title}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteTasklist removes a task list and everything in it.
func (c *Client) DeleteTasklist(listID string) error {
	return c.doRequest("DeleteTasklist", http.MethodDelete, "/users/@me/lists/"+listID, nil, nil, nil)
}

// ListTasks fetches tasks of one list, following pagination. UpdatedMin
// bounds the pull to tasks updated at or after that instant.
func (c *Client) ListTasks(listID string, opts ListTasksOptions) ([]TaskResource, error) {
	var tasks []TaskResource
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("maxResults", "100")
		if opts.UpdatedMin != nil {
			query.Set("updatedMin", opts.UpdatedMin.UTC().Format(time.RFC3339))
		}
		if opts.IncludeCompleted {
			query.Set("showCompleted", "true")
		}
		if opts.IncludeHidden {
			query.Set("showHidden", "true")
		}
		if opts.IncludeDeleted {
			query.Set("showDeleted", "true")
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page tasksResponse
		if err := c.doRequest("ListTasks", http.MethodGet, "/lists/"+listID+"/tasks", query, nil, &page); err != nil {
			return nil, err
		}
		tasks = append(tasks, page.Items...)
		if page.NextPageToken == "" {
			return tasks, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetTask fetches a single task.
func (c *Client) GetTask(listID, taskID string) (*TaskResource, error) {
	var task TaskResource
	if err := c.doRequest("GetTask", http.MethodGet, "/lists/"+listID+"/tasks/"+taskID, nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// InsertTask creates a task in the given list and returns the resource
// with the upstream-assigned id.
func (c *Client) InsertTask(listID string, task TaskResource) (*TaskResource, error) {
	var created TaskResource
	if err := c.doRequest("InsertTask", http.MethodPost, "/lists/"+listID+"/tasks", nil, task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// PatchTask updates only the given fields of a task.
func (c *Client) PatchTask(listID, taskID string, fields map[string]interface{}) (*TaskResource, error) {
	var updated TaskResource
	if err := c.doRequest("PatchTask", http.MethodPatch, "/lists/"+listID+"/tasks/"+taskID, nil, fields, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes a task upstream.
func (c *Client) DeleteTask(listID, taskID string) error {
	return c.doRequest("DeleteTask", http.MethodDelete, "/lists/"+listID+"/tasks/"+taskID, nil, nil, nil)
}

// IsNotFound reports whether err is an upstream 404. The engine treats
// deleting an already-gone task as success.
func IsNotFound(err error) bool {
	if ue, ok := err.(*store.UpstreamError); ok {
		return ue.IsNotFound()
	}
	return false
}
