package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/taskhub/tasks"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{Path: filepath.Join(t.TempDir(), "taskhub.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func mustUser(t *testing.T, s *Store, id string, role tasks.Role) {
	t.Helper()
	if err := s.Directory.CreateUser(context.Background(), &tasks.User{ID: id, Name: id, Email: id + "@example.com", Role: role}); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", id, err)
	}
}

// seed inserts a task with sensible defaults; mutate adjusts it first.
func seed(t *testing.T, s *Store, n int, creator string, mutate func(*tasks.Task)) *tasks.Task {
	t.Helper()
	task := &tasks.Task{
		ID:        fmt.Sprintf("task-%02d", n),
		Title:     fmt.Sprintf("Task %d", n),
		Status:    tasks.StatusTodo,
		Priority:  tasks.PriorityMedium,
		IssueType: tasks.IssueFeature,
		CreatorID: creator,
		Position:  n,
		CreatedAt: baseTime.Add(time.Duration(n) * time.Minute),
		UpdatedAt: baseTime.Add(time.Duration(n) * time.Minute),
	}
	if mutate != nil {
		mutate(task)
	}
	if err := s.Tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("Create(%s) error = %v", task.ID, err)
	}
	return task
}

func ids(items []tasks.Task) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func sameIDs(got []tasks.Task, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range want {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestTaskRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustUser(t, s, "alice", tasks.RoleDeveloper)
	mustUser(t, s, "bob", tasks.RoleDeveloper)
	if err := s.Directory.CreateProject(ctx, &tasks.Project{ID: "p1", Name: "Website", OwnerID: "alice"}); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	created := seed(t, s, 1, "alice", func(task *tasks.Task) {
		task.ProjectID = strPtr("p1")
		task.AssigneeID = strPtr("bob")
		task.Metadata = map[string]interface{}{"source": "import"}
		task.DueDate = timePtr(baseTime.Add(48 * time.Hour))
	})
	if created.Version != 1 {
		t.Fatalf("Create() version = %d, want 1", created.Version)
	}

	got, err := s.Tasks.Get(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Creator == nil || got.Creator.ID != "alice" {
		t.Fatalf("Get() creator = %+v, want alice", got.Creator)
	}
	if got.Assignee == nil || got.Assignee.ID != "bob" {
		t.Fatalf("Get() assignee = %+v, want bob", got.Assignee)
	}
	if got.Project == nil || got.Project.OwnerID != "alice" {
		t.Fatalf("Get() project = %+v, want owner alice", got.Project)
	}
	if got.Metadata["source"] != "import" {
		t.Fatalf("Get() metadata = %v", got.Metadata)
	}
	if got.DueDate == nil || !got.DueDate.Equal(baseTime.Add(48*time.Hour)) {
		t.Fatalf("Get() due date = %v", got.DueDate)
	}

	plain, err := s.Tasks.Get(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("Get(no relations) error = %v", err)
	}
	if plain.Creator != nil || plain.Project != nil {
		t.Fatalf("relations must only load on request")
	}

	stale := plain.Clone()
	plain.Title = "Renamed"
	if err := s.Tasks.Save(ctx, plain); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if plain.Version != 2 {
		t.Fatalf("Save() version = %d, want 2", plain.Version)
	}

	stale.Title = "Lost update"
	if err := s.Tasks.Save(ctx, &stale); !errors.Is(err, tasks.ErrConflict) {
		t.Fatalf("Save(stale) error = %v, want ErrConflict", err)
	}
	reloaded, _ := s.Tasks.Get(ctx, created.ID, false)
	if reloaded.Title != "Renamed" {
		t.Fatalf("stale save overwrote title: %q", reloaded.Title)
	}

	if err := s.Tasks.SoftDelete(ctx, created.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if _, err := s.Tasks.Get(ctx, created.ID, false); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.Tasks.Save(ctx, reloaded); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("Save(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.Tasks.SoftDelete(ctx, created.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("SoftDelete twice error = %v, want ErrNotFound", err)
	}
}

func TestMaxPositionIsScopedByProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if got, err := s.Tasks.MaxPosition(ctx, nil); err != nil || got != 0 {
		t.Fatalf("MaxPosition(empty) = %d, %v; want 0", got, err)
	}

	seed(t, s, 1, "alice", func(task *tasks.Task) { task.Position = 3 })
	seed(t, s, 2, "alice", func(task *tasks.Task) { task.Position = 7; task.ProjectID = strPtr("p1") })
	deleted := seed(t, s, 3, "alice", func(task *tasks.Task) { task.Position = 9; task.ProjectID = strPtr("p1") })
	if err := s.Tasks.SoftDelete(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	if got, _ := s.Tasks.MaxPosition(ctx, nil); got != 3 {
		t.Fatalf("MaxPosition(no project) = %d, want 3", got)
	}
	if got, _ := s.Tasks.MaxPosition(ctx, strPtr("p1")); got != 7 {
		t.Fatalf("MaxPosition(p1) = %d, want 7 (deleted rows ignored)", got)
	}
	if got, _ := s.Tasks.MaxPosition(ctx, strPtr("p2")); got != 0 {
		t.Fatalf("MaxPosition(p2) = %d, want 0", got)
	}
}

func TestFindScopesToCreatorOrAssignee(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seed(t, s, 1, "alice", nil)
	seed(t, s, 2, "bob", func(task *tasks.Task) { task.AssigneeID = strPtr("alice") })
	seed(t, s, 3, "bob", nil)
	gone := seed(t, s, 4, "alice", nil)
	_ = s.Tasks.SoftDelete(ctx, gone.ID)

	page, err := s.Tasks.Find(ctx, tasks.Query{Viewer: tasks.Principal{ID: "alice"}})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if page.Total != 2 || !sameIDs(page.Items, "task-02", "task-01") {
		t.Fatalf("Find(alice) = %v total %d, want [task-02 task-01] total 2", ids(page.Items), page.Total)
	}

	page, _ = s.Tasks.Find(ctx, tasks.Query{Viewer: tasks.Principal{ID: "alice", Role: tasks.RoleAdmin}, Unrestricted: true})
	if page.Total != 3 {
		t.Fatalf("Find(unrestricted) total = %d, want 3", page.Total)
	}
}

func TestFindFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := baseTime.Add(24 * time.Hour)

	seed(t, s, 1, "u", func(task *tasks.Task) {
		task.Title = "100% coverage"
		task.Priority = tasks.PriorityHigh
		task.DueDate = timePtr(now.Add(-time.Hour))
	})
	seed(t, s, 2, "u", func(task *tasks.Task) {
		task.Title = "1000 widgets"
		task.Description = "Ship the FIX_ME list"
		task.DueDate = timePtr(now.Add(-time.Hour))
		task.Status = tasks.StatusDone
		task.AssigneeID = strPtr("u")
	})
	seed(t, s, 3, "u", func(task *tasks.Task) {
		task.Title = "Refactor parser"
		task.IsBlocked = true
		task.BlockedReason = "waiting on review"
		task.DueDate = timePtr(now.Add(time.Hour))
		task.ProjectID = strPtr("p1")
	})
	seed(t, s, 4, "u", func(task *tasks.Task) {
		task.Title = "Ürgent Straße Fix"
		task.Description = "Bake ÄPFEL strudel"
	})

	blocked := true
	cases := []struct {
		name   string
		filter tasks.Filter
		want   []string
	}{
		{name: "search escapes percent", filter: tasks.Filter{Search: "100%"}, want: []string{"task-01"}},
		{name: "search is case-insensitive on description", filter: tasks.Filter{Search: "fix_me"}, want: []string{"task-02"}},
		{name: "search folds non-ASCII capitals in the term", filter: tasks.Filter{Search: "ÜRGENT"}, want: []string{"task-04"}},
		{name: "search folds non-ASCII capitals in the title", filter: tasks.Filter{Search: "ürgent straße"}, want: []string{"task-04"}},
		{name: "search exact case non-ASCII", filter: tasks.Filter{Search: "Ürgent"}, want: []string{"task-04"}},
		{name: "search folds non-ASCII description", filter: tasks.Filter{Search: "äpfel"}, want: []string{"task-04"}},
		{name: "overdue excludes done", filter: tasks.Filter{Overdue: true}, want: []string{"task-01"}},
		{name: "priority", filter: tasks.Filter{Priority: tasks.PriorityHigh}, want: []string{"task-01"}},
		{name: "status", filter: tasks.Filter{Status: tasks.StatusDone}, want: []string{"task-02"}},
		{name: "unknown status matches nothing", filter: tasks.Filter{Status: "paused"}, want: nil},
		{name: "blocked", filter: tasks.Filter{Blocked: &blocked}, want: []string{"task-03"}},
		{name: "project", filter: tasks.Filter{ProjectID: "p1"}, want: []string{"task-03"}},
		{name: "my tasks", filter: tasks.Filter{MyTasks: true}, want: []string{"task-02"}},
		{name: "unassigned", filter: tasks.Filter{Unassigned: true}, want: []string{"task-04", "task-03", "task-01"}},
		{name: "due range", filter: tasks.Filter{DueFrom: timePtr(now), DueTo: timePtr(now.Add(2 * time.Hour))}, want: []string{"task-03"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := s.Tasks.Find(ctx, tasks.Query{Filter: tc.filter, Viewer: tasks.Principal{ID: "u"}, Now: now})
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if !sameIDs(page.Items, tc.want...) {
				t.Fatalf("Find() = %v, want %v", ids(page.Items), tc.want)
			}
			if page.Total != int64(len(tc.want)) {
				t.Fatalf("Find() total = %d, want %d", page.Total, len(tc.want))
			}
		})
	}
}

func TestSearchTextFollowsSavesAndBackfills(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "taskhub.db")
	s, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	task := seed(t, s, 1, "u", func(task *tasks.Task) { task.Title = "Ölwechsel planen" })

	// rows written before search_text existed carry an empty value
	if err := s.db.Model(&taskRecord{}).Where("id = ?", task.ID).UpdateColumn("search_text", "").Error; err != nil {
		t.Fatalf("clear search_text: %v", err)
	}
	_ = s.Close()

	s, err = Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	search := func(term string) []string {
		t.Helper()
		page, err := s.Tasks.Find(ctx, tasks.Query{Filter: tasks.Filter{Search: term}, Viewer: tasks.Principal{ID: "u"}})
		if err != nil {
			t.Fatalf("Find(%q) error = %v", term, err)
		}
		return ids(page.Items)
	}
	if got := search("ÖLWECHSEL"); len(got) != 1 {
		t.Fatalf("search after backfill = %v, want the task", got)
	}

	task.Title = "Reifen tauschen"
	task.Description = "Winterreifen für den ÄRZTEWAGEN"
	if err := s.Tasks.Save(ctx, task); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := search("ölwechsel"); len(got) != 0 {
		t.Fatalf("old title still matches: %v", got)
	}
	if got := search("ärztewagen"); len(got) != 1 {
		t.Fatalf("search on saved description = %v, want the task", got)
	}
}

func TestFindSortingAndPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	prios := []tasks.Priority{tasks.PriorityLow, tasks.PriorityCritical, tasks.PriorityMedium, tasks.PriorityUrgent, tasks.PriorityHigh}
	for i, p := range prios {
		p := p
		seed(t, s, i+1, "u", func(task *tasks.Task) { task.Priority = p })
	}

	page, err := s.Tasks.Find(ctx, tasks.Query{
		Viewer:      tasks.Principal{ID: "u"},
		ListOptions: tasks.ListOptions{SortBy: tasks.SortPriority, Limit: 2, Page: 1},
	})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if !sameIDs(page.Items, "task-02", "task-04") {
		t.Fatalf("page 1 = %v, want critical then urgent", ids(page.Items))
	}
	if page.Total != 5 || page.TotalPages != 3 || !page.HasNext || page.HasPrev {
		t.Fatalf("page metadata = %+v", page)
	}

	page, _ = s.Tasks.Find(ctx, tasks.Query{
		Viewer:      tasks.Principal{ID: "u"},
		ListOptions: tasks.ListOptions{SortBy: tasks.SortPriority, SortOrder: tasks.SortAsc, Limit: 2, Page: 3},
	})
	if !sameIDs(page.Items, "task-02") || page.HasNext || !page.HasPrev {
		t.Fatalf("last ascending page = %v (%+v)", ids(page.Items), page)
	}

	// limit above the cap and page below 1 are clamped
	page, _ = s.Tasks.Find(ctx, tasks.Query{
		Viewer:      tasks.Principal{ID: "u"},
		ListOptions: tasks.ListOptions{Limit: 500, Page: -3, SortBy: "drop table"},
	})
	if page.Limit != tasks.MaxLimit || page.Page != 1 || len(page.Items) != 5 {
		t.Fatalf("clamped page = %+v", page)
	}
	if !sameIDs(page.Items, "task-05", "task-04", "task-03", "task-02", "task-01") {
		t.Fatalf("default order = %v, want created_at DESC", ids(page.Items))
	}
}

func TestFindSortsByStatusRank(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	statuses := []tasks.Status{
		tasks.StatusDone, tasks.StatusBacklog, tasks.StatusInReview, tasks.StatusCancelled,
		tasks.StatusTodo, tasks.StatusInProgress, tasks.StatusTesting,
	}
	for i, st := range statuses {
		st := st
		seed(t, s, i+1, "u", func(task *tasks.Task) { task.Status = st })
	}

	statusesOf := func(order tasks.SortOrder) []tasks.Status {
		t.Helper()
		page, err := s.Tasks.Find(ctx, tasks.Query{
			Viewer:      tasks.Principal{ID: "u"},
			ListOptions: tasks.ListOptions{SortBy: tasks.SortStatus, SortOrder: order},
		})
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		out := make([]tasks.Status, 0, len(page.Items))
		for _, it := range page.Items {
			out = append(out, it.Status)
		}
		return out
	}

	want := []tasks.Status{
		tasks.StatusInProgress, tasks.StatusInReview, tasks.StatusTesting, tasks.StatusTodo,
		tasks.StatusBacklog, tasks.StatusDone, tasks.StatusCancelled,
	}
	if got := statusesOf(tasks.SortDesc); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("descending status order = %v, want %v", got, want)
	}

	reversed := make([]tasks.Status, 0, len(want))
	for i := len(want) - 1; i >= 0; i-- {
		reversed = append(reversed, want[i])
	}
	if got := statusesOf(tasks.SortAsc); fmt.Sprint(got) != fmt.Sprint(reversed) {
		t.Fatalf("ascending status order = %v, want %v", got, reversed)
	}
}

func TestSaveAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := seed(t, s, 1, "u", nil)
	b := seed(t, s, 2, "u", nil)

	// bump b behind the batch's back
	concurrent, _ := s.Tasks.Get(ctx, b.ID, false)
	concurrent.Title = "changed elsewhere"
	if err := s.Tasks.Save(ctx, concurrent); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	a.Status = tasks.StatusInProgress
	b.Status = tasks.StatusInProgress
	if err := s.Tasks.SaveAll(ctx, []*tasks.Task{a, b}); !errors.Is(err, tasks.ErrConflict) {
		t.Fatalf("SaveAll() error = %v, want ErrConflict", err)
	}
	if a.Version != 1 {
		t.Fatalf("failed batch bumped in-memory version to %d", a.Version)
	}

	got, _ := s.Tasks.Get(ctx, a.ID, false)
	if got.Status != tasks.StatusTodo {
		t.Fatalf("first task was written despite rollback: status %s", got.Status)
	}

	b.Version = concurrent.Version
	if err := s.Tasks.SaveAll(ctx, []*tasks.Task{a, b}); err != nil {
		t.Fatalf("SaveAll() retry error = %v", err)
	}
	if a.Version != 2 || b.Version != 3 {
		t.Fatalf("versions after SaveAll = %d, %d; want 2, 3", a.Version, b.Version)
	}
}

func TestStatsBreakdowns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := baseTime.Add(24 * time.Hour)

	seed(t, s, 1, "u", func(task *tasks.Task) { task.Status = tasks.StatusDone; task.Priority = tasks.PriorityHigh })
	seed(t, s, 2, "u", func(task *tasks.Task) {
		task.Status = tasks.StatusInProgress
		task.DueDate = timePtr(now.Add(-time.Hour))
		task.IsBlocked = true
	})
	seed(t, s, 3, "other", func(task *tasks.Task) { task.AssigneeID = strPtr("u"); task.ProjectID = strPtr("p1") })
	seed(t, s, 4, "other", nil)

	st, err := s.Tasks.Stats(ctx, "u", "", now)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Total != 3 || st.Completed != 1 || st.InProgress != 1 || st.Overdue != 1 || st.Blocked != 1 {
		t.Fatalf("Stats() = %+v", st)
	}
	if st.ByStatus[tasks.StatusTodo] != 1 || st.ByStatus[tasks.StatusCancelled] != 0 {
		t.Fatalf("ByStatus = %v", st.ByStatus)
	}
	if len(st.ByPriority) != len(tasks.AllPriorities) || st.ByPriority[tasks.PriorityMedium] != 2 {
		t.Fatalf("ByPriority = %v", st.ByPriority)
	}

	st, _ = s.Tasks.Stats(ctx, "u", "p1", now)
	if st.Total != 1 || st.CompletionRate != 0 {
		t.Fatalf("Stats(p1) = %+v", st)
	}
}

func TestActivityRepositoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, typ := range []tasks.ActivityType{tasks.ActivityCreated, tasks.ActivityStatusChanged, tasks.ActivityTimeLogged} {
		meta, _ := json.Marshal(map[string]interface{}{"step": i})
		err := s.Activities.Append(ctx, &tasks.Activity{
			ID:        fmt.Sprintf("a%d", i),
			TaskID:    "t1",
			UserID:    "u",
			Type:      typ,
			Metadata:  meta,
			CreatedAt: baseTime,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	_ = s.Activities.Append(ctx, &tasks.Activity{ID: "other", TaskID: "t2", UserID: "u", Type: tasks.ActivityCreated, CreatedAt: baseTime})

	list, err := s.Activities.List(ctx, "t1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].Type != tasks.ActivityTimeLogged || list[2].Type != tasks.ActivityCreated {
		t.Fatalf("List() order = %s..%s, want newest first", list[0].Type, list[2].Type)
	}
	if got := list[0].Meta("step").Int(); got != 2 {
		t.Fatalf("Meta(step) = %d, want 2", got)
	}
	if n, _ := s.Activities.Count(ctx, "t1"); n != 3 {
		t.Fatalf("Count() = %d, want 3", n)
	}
}

func TestDirectoryRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Directory.CreateUser(ctx, &tasks.User{Name: " "}); !errors.Is(err, tasks.ErrInvalidInput) {
		t.Fatalf("CreateUser(blank) error = %v, want ErrInvalidInput", err)
	}
	u := &tasks.User{Name: "Carol"}
	if err := s.Directory.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID == "" || u.Role != tasks.RoleUser {
		t.Fatalf("CreateUser() defaults = %+v", u)
	}
	if err := s.Directory.CreateProject(ctx, &tasks.Project{Name: "X", OwnerID: "nobody"}); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("CreateProject(unknown owner) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Directory.GetProject(ctx, "missing"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("GetProject(missing) error = %v, want ErrNotFound", err)
	}
	users, err := s.Directory.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers() = %v, %v", users, err)
	}
}
