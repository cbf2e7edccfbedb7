package cron

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cron 定时任务管理器
type Cron struct {
	mu       sync.Mutex
	jobs     map[string]*ScheduledJob
	tick     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// ScheduledJob 定时任务
type ScheduledJob struct {
	ID       string
	Schedule Schedule
	Func     func()
	Next     time.Time
}

// NewCron 创建 Cron
func NewCron() *Cron {
	return &Cron{
		jobs: make(map[string]*ScheduledJob),
		tick: time.Second,
		stop: make(chan struct{}),
	}
}

// Schedule 调度接口
type Schedule interface {
	Next(time.Time) time.Time
}

// ScheduleFunc 调度函数
type ScheduleFunc func(time.Time) time.Time

// Next 实现 Schedule 接口
func (f ScheduleFunc) Next(t time.Time) time.Time {
	return f(t)
}

// Every returns a fixed-interval schedule.
func Every(d time.Duration) Schedule {
	return ScheduleFunc(func(t time.Time) time.Time {
		return t.Add(d)
	})
}

// Run 运行 Cron，直到 Stop 被调用
func (c *Cron) Run() {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.fire(now)
		}
	}
}

func (c *Cron) fire(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, job := range c.jobs {
		if !now.Before(job.Next) {
			go job.Func()
			job.Next = job.Schedule.Next(now)
		}
	}
}

// Stop 停止 Cron
func (c *Cron) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Schedule 添加调度，同 id 的旧调度被替换
func (c *Cron) Schedule(schedule Schedule, jobFunc func(), id string) time.Time {
	next := schedule.Next(time.Now())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[id] = &ScheduledJob{
		ID:       id,
		Schedule: schedule,
		Func:     jobFunc,
		Next:     next,
	}
	return next
}

// Remove 移除调度
func (c *Cron) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, id)
}

// Next reports when the job with id fires next.
func (c *Cron) Next(id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return job.Next, true
}

// Parse 解析调度表达式，支持 "every N seconds|minutes|hours" 和 "@every 90s"
func Parse(spec string) (Schedule, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, fmt.Errorf("empty cron spec")
	}

	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d < time.Second {
			return nil, fmt.Errorf("invalid interval %q: must be a duration of at least 1s", rest)
		}
		return Every(d), nil
	}

	fields := strings.Fields(s)
	if len(fields) == 3 && strings.EqualFold(fields[0], "every") {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid interval %q", fields[1])
		}
		var unit time.Duration
		switch strings.ToLower(fields[2]) {
		case "second", "seconds":
			unit = time.Second
		case "minute", "minutes":
			unit = time.Minute
		case "hour", "hours":
			unit = time.Hour
		default:
			return nil, fmt.Errorf("unsupported unit %q", fields[2])
		}
		return Every(time.Duration(n) * unit), nil
	}

	return nil, fmt.Errorf("invalid cron spec: %q", spec)
}
