package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// scopeAll is the key scope of unrestricted (admin) listings.
const scopeAll = "all"

// cacheKind is one cached read model: its key prefix and lifetime.
type cacheKind struct {
	name string
	ttl  time.Duration
}

var (
	kindTaskList     = cacheKind{name: "tasks", ttl: 5 * time.Minute}
	kindTask         = cacheKind{name: "task", ttl: 5 * time.Minute}
	kindStats        = cacheKind{name: "task_stats", ttl: 10 * time.Minute}
	kindProjectTasks = cacheKind{name: "project_tasks", ttl: 5 * time.Minute}
	kindOverdue      = cacheKind{name: "overdue_tasks", ttl: 5 * time.Minute}
)

func (k cacheKind) key(scope, rest string) string {
	return k.name + ":" + scope + ":" + rest
}

// digest hashes the canonical JSON of v. encoding/json sorts map keys and
// emits struct fields in declaration order.
func digest(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

func listScope(p Principal) string {
	if p.IsAdmin() {
		return scopeAll
	}
	return p.ID
}

type listKey struct {
	Viewer string      `json:"viewer"`
	Filter Filter      `json:"filter"`
	Opts   ListOptions `json:"opts"`
}

func taskListKey(p Principal, f Filter, o ListOptions) string {
	return kindTaskList.key(listScope(p), digest(listKey{p.ID, f, o}))
}

func taskKey(taskID, viewerID string) string {
	return kindTask.key(taskID, viewerID)
}

func statsKey(viewerID, projectID string) string {
	if projectID == "" {
		projectID = scopeAll
	}
	return kindStats.key(viewerID, projectID)
}

func overdueKey(p Principal, o ListOptions) string {
	return kindOverdue.key(listScope(p), digest(listKey{Viewer: p.ID, Opts: o}))
}

func projectTasksKey(projectID string, p Principal, unrestricted bool, f Filter, o ListOptions) string {
	viewer := p.ID
	if unrestricted {
		viewer = scopeAll
	}
	return kindProjectTasks.key(projectID, digest(listKey{viewer, f, o}))
}

// affected collects who and what a write touched.
type affected struct {
	users    map[string]struct{}
	tasks    map[string]struct{}
	projects map[string]struct{}
}

func newAffected() *affected {
	return &affected{
		users:    make(map[string]struct{}),
		tasks:    make(map[string]struct{}),
		projects: make(map[string]struct{}),
	}
}

func (a *affected) add(set map[string]struct{}, ids ...string) {
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

// task records the actor-independent parties of a task snapshot.
func (a *affected) task(t *Task) *affected {
	a.add(a.tasks, t.ID)
	a.add(a.users, t.CreatorID)
	if t.AssigneeID != nil {
		a.add(a.users, *t.AssigneeID)
	}
	if t.ProjectID != nil {
		a.add(a.projects, *t.ProjectID)
	}
	return a
}

func (a *affected) user(id string) *affected {
	a.add(a.users, id)
	return a
}

type invalidationRule struct {
	template string
	over     func(*affected) map[string]struct{}
}

// invalidationRules maps every write to the cached kinds it can stale.
// "{}" is replaced by each id in the selected set; a nil selector means the
// pattern is cleared once per write.
var invalidationRules = []invalidationRule{
	{template: "tasks:{}:*", over: byUser},
	{template: "task:*:{}", over: byUser},
	{template: "task_stats:{}:*", over: byUser},
	{template: "overdue_tasks:{}:*", over: byUser},
	{template: "task:{}:*", over: byTask},
	{template: "project_tasks:{}:*", over: byProject},
	{template: "tasks:" + scopeAll + ":*"},
	{template: "overdue_tasks:" + scopeAll + ":*"},
}

func byUser(a *affected) map[string]struct{}    { return a.users }
func byTask(a *affected) map[string]struct{}    { return a.tasks }
func byProject(a *affected) map[string]struct{} { return a.projects }

// patterns expands the rules for a. Ids are glob-quoted so that an id
// containing meta characters cannot widen the match.
func (a *affected) patterns() []string {
	var out []string
	for _, rule := range invalidationRules {
		if rule.over == nil {
			out = append(out, rule.template)
			continue
		}
		for id := range rule.over(a) {
			out = append(out, strings.Replace(rule.template, "{}", glob.QuoteMeta(id), 1))
		}
	}
	return out
}
