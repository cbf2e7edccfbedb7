package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/taskhub/tasks"
	"gorm.io/gorm"
)

// DirectoryRepository stores users and projects and implements
// tasks.Directory.
type DirectoryRepository struct {
	db *gorm.DB
}

var _ tasks.Directory = (*DirectoryRepository)(nil)

// CreateUser 创建用户，ID 为空时自动生成
func (r *DirectoryRepository) CreateUser(ctx context.Context, u *tasks.User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("user name is required: %w", tasks.ErrInvalidInput)
	}
	if u.Role == "" {
		u.Role = tasks.RoleUser
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("unknown role %q: %w", u.Role, tasks.ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	rec := &userRecord{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser 获取用户
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*tasks.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, tasks.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return rec.toUser(), nil
}

// ListUsers 按创建时间列出用户
func (r *DirectoryRepository) ListUsers(ctx context.Context) ([]tasks.User, error) {
	var records []userRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]tasks.User, 0, len(records))
	for i := range records {
		out = append(out, *records[i].toUser())
	}
	return out, nil
}

// CreateProject 创建项目，owner 必须存在
func (r *DirectoryRepository) CreateProject(ctx context.Context, p *tasks.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required: %w", tasks.ErrInvalidInput)
	}
	if _, err := r.GetUser(ctx, p.OwnerID); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	rec := &projectRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject 获取项目
func (r *DirectoryRepository) GetProject(ctx context.Context, id string) (*tasks.Project, error) {
	var rec projectRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", id, tasks.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return rec.toProject(), nil
}
