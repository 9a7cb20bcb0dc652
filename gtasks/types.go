package gtasks

// Wire types for the Google Tasks REST API (tasks/v1).

// TaskListResource is one entry of tasklists.list.
type TaskListResource struct {
	Kind     string `json:"kind,omitempty"`
	ID       string `json:"id,omitempty"`
	ETag     string `json:"etag,omitempty"`
	Title    string `json:"title"`
	Updated  string `json:"updated,omitempty"` // RFC3339
	SelfLink string `json:"selfLink,omitempty"`
}

type taskListsResponse struct {
	Kind          string             `json:"kind,omitempty"`
	ETag          string             `json:"etag,omitempty"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
	Items         []TaskListResource `json:"items,omitempty"`
}

// TaskResource is one entry of tasks.list.
type TaskResource struct {
	Kind      string `json:"kind,omitempty"`
	ID        string `json:"id,omitempty"`
	ETag      string `json:"etag,omitempty"`
	Title     string `json:"title"`
	Updated   string `json:"updated,omitempty"` // RFC3339
	SelfLink  string `json:"selfLink,omitempty"`
	Parent    string `json:"parent,omitempty"`
	Position  string `json:"position,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status,omitempty"` // needsAction | completed
	Due       string `json:"due,omitempty"`    // RFC3339, date portion significant
	Completed string `json:"completed,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
	Hidden    bool   `json:"hidden,omitempty"`
}

type tasksResponse struct {
	Kind          string         `json:"kind,omitempty"`
	ETag          string         `json:"etag,omitempty"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
	Items         []TaskResource `json:"items,omitempty"`
}

const (
	wireStatusNeedsAction = "needsAction"
	wireStatusCompleted   = "completed"
)
