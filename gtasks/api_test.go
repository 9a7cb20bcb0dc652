package gtasks

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gtasksync/store"
)

func TestListTasklistsPaging(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/users/@me/lists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("pageToken") {
		case "":
			json.NewEncoder(w).Encode(taskListsResponse{
				NextPageToken: "page2",
				Items:         []TaskListResource{{ID: "l1", Title: "Inbox"}},
			})
		case "page2":
			json.NewEncoder(w).Encode(taskListsResponse{
				Items: []TaskListResource{{ID: "l2", Title: "Work"}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	lists, err := client.ListTasklists()
	if err != nil {
		t.Fatalf("ListTasklists failed: %v", err)
	}
	if len(lists) != 2 || lists[0].ID != "l1" || lists[1].ID != "l2" {
		t.Errorf("lists = %+v", lists)
	}
	if calls != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
}

func TestListTasksQueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("showCompleted") != "true" || q.Get("showDeleted") != "true" {
			t.Errorf("missing show flags: %v", q)
		}
		if q.Get("updatedMin") == "" {
			t.Error("updatedMin not set")
		}
		json.NewEncoder(w).Encode(tasksResponse{Items: []TaskResource{{ID: "t1", Title: "task"}}})
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	since := mustParseTime(t, "2024-01-01T00:00:00Z")
	tasks, err := client.ListTasks("l1", ListTasksOptions{
		UpdatedMin:       &since,
		IncludeCompleted: true,
		IncludeDeleted:   true,
	})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(TaskResource{ID: "t1", Title: "ok"})
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	task, err := client.GetTask("l1", "t1")
	if err != nil {
		t.Fatalf("GetTask failed after retries: %v", err)
	}
	if task.ID != "t1" {
		t.Errorf("task = %+v", task)
	}
	if calls != 3 {
		t.Errorf("server calls = %d, want 3", calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	_, err := client.GetTask("l1", "t1")
	var netErr *store.TransientNetError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected TransientNetError, got %v", err)
	}
	if calls != maxRetries {
		t.Errorf("server calls = %d, want %d", calls, maxRetries)
	}
}

func TestAuthErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	_, err := client.GetTask("l1", "t1")
	var authErr *store.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("server calls = %d, want 1 (no retry on auth failure)", calls)
	}
}

func TestNotFoundSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	err := client.DeleteTask("l1", "ghost")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found upstream error, got %v", err)
	}
}

func TestInsertTaskSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var got TaskResource
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if got.Title != "new task" {
			t.Errorf("title = %q", got.Title)
		}
		got.ID = "assigned-id"
		json.NewEncoder(w).Encode(got)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	created, err := client.InsertTask("l1", TaskResource{Title: "new task", Status: wireStatusNeedsAction})
	if err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	if created.ID != "assigned-id" {
		t.Errorf("created id = %q", created.ID)
	}
}

func TestBackoffDelay(t *testing.T) {
	if d := backoffDelay(0, ""); d.Seconds() != 1 {
		t.Errorf("attempt 0 delay = %v, want 1s", d)
	}
	if d := backoffDelay(3, ""); d.Seconds() != 8 {
		t.Errorf("attempt 3 delay = %v, want 8s", d)
	}
	if d := backoffDelay(0, "30"); d.Seconds() != 30 {
		t.Errorf("Retry-After delay = %v, want 30s", d)
	}
}
