package cron

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/taskhub/internal/logger"
	"go.uber.org/zap"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	cron    *Cron
	jobs    map[string]*Job
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Job 定时任务
type Job struct {
	ID       string
	Name     string
	Schedule string
	Enabled  bool
	Run      func(ctx context.Context) error

	mu        sync.Mutex
	LastRun   time.Time
	NextRun   time.Time
	RunCount  int
	LastError string
}

// JobStatus is a point-in-time copy of a job's run state.
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Enabled   bool      `json:"enabled"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int       `json:"run_count"`
	LastError string    `json:"last_error,omitempty"`
}

// NewScheduler 创建调度器
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: NewCron(),
		jobs: make(map[string]*Job),
	}
}

// Start 启动调度器；ctx 结束时调度器自动停止
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	go s.cron.Run()
	go func(done <-chan struct{}) {
		<-done
		s.Stop()
	}(s.ctx.Done())

	logger.Info("Cron scheduler started", zap.Int("jobs", len(s.jobs)))

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.cancel()
	s.running = false

	logger.Info("Cron scheduler stopped")
}

// AddJob 添加任务
func (s *Scheduler) AddJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.ID)
	}

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return err
		}
	}
	s.jobs[job.ID] = job

	logger.Info("Cron job added",
		zap.String("job_id", job.ID),
		zap.String("schedule", job.Schedule),
	)

	return nil
}

// scheduleJob 调度任务
func (s *Scheduler) scheduleJob(job *Job) error {
	schedule, err := Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule: %w", err)
	}

	next := s.cron.Schedule(schedule, s.createJobFunc(job), job.ID)

	job.mu.Lock()
	job.NextRun = next
	job.mu.Unlock()

	return nil
}

// createJobFunc 创建任务函数
func (s *Scheduler) createJobFunc(job *Job) func() {
	return func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()
		if ctx == nil {
			ctx = context.Background()
		}
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	logger.Debug("Running cron job",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
	)

	err := job.Run(ctx)
	if err != nil {
		logger.Error("Cron job execution failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}

	job.mu.Lock()
	job.LastRun = time.Now()
	job.RunCount++
	job.LastError = ""
	if err != nil {
		job.LastError = err.Error()
	}
	if next, ok := s.cron.Next(job.ID); ok {
		job.NextRun = next
	}
	job.mu.Unlock()
}

// RunNow 立即同步执行一次任务
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	s.execute(ctx, job)
	return nil
}

// RemoveJob 移除任务
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job %s not found", id)
	}

	s.cron.Remove(id)
	delete(s.jobs, id)

	logger.Info("Cron job removed", zap.String("job_id", id))

	return nil
}

// GetJob 获取任务状态
func (s *Scheduler) GetJob(id string) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return job.status(), true
}

// ListJobs 列出所有任务，按 ID 排序
func (s *Scheduler) ListJobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnableJob 启用任务
func (s *Scheduler) EnableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}

	if job.Enabled {
		return nil
	}

	job.Enabled = true

	if err := s.scheduleJob(job); err != nil {
		job.Enabled = false
		return err
	}

	logger.Info("Cron job enabled", zap.String("job_id", id))

	return nil
}

// DisableJob 禁用任务
func (s *Scheduler) DisableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}

	if !job.Enabled {
		return nil
	}

	job.Enabled = false
	s.cron.Remove(id)

	logger.Info("Cron job disabled", zap.String("job_id", id))

	return nil
}

func (j *Job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		ID:        j.ID,
		Name:      j.Name,
		Schedule:  j.Schedule,
		Enabled:   j.Enabled,
		LastRun:   j.LastRun,
		NextRun:   j.NextRun,
		RunCount:  j.RunCount,
		LastError: j.LastError,
	}
}
