// Package storage persists tasks, activities, users and projects with gorm
// on a pure-Go sqlite driver.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options 数据库选项
type Options struct {
	// Path is the sqlite file; ":memory:" keeps everything in process.
	Path string
	// LogLevel is one of silent, error, warn, info.
	LogLevel string
}

// Store 持有数据库连接和各个仓储
type Store struct {
	db *gorm.DB

	Tasks      *TaskRepository
	Activities *ActivityRepository
	Directory  *DirectoryRepository
}

// Open opens (creating if needed) the database and migrates the schema.
func Open(opts Options) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(parseLogLevel(opts.LogLevel)),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &projectRecord{}, &taskRecord{}, &activityRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := backfillSearchText(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		Tasks:      &TaskRepository{db: db},
		Activities: &ActivityRepository{db: db},
		Directory:  &DirectoryRepository{db: db},
	}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// backfillSearchText fills search_text for rows written before the column
// existed. Soft-deleted rows are included so a restore stays searchable.
func backfillSearchText(db *gorm.DB) error {
	var stale []taskRecord
	err := db.Unscoped().Select("id", "title", "description").
		Where("search_text IS NULL OR search_text = ''").
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("failed to scan tasks for search backfill: %w", err)
	}
	for _, rec := range stale {
		err := db.Unscoped().Model(&taskRecord{}).Where("id = ?", rec.ID).
			UpdateColumn("search_text", searchText(rec.Title, rec.Description)).Error
		if err != nil {
			return fmt.Errorf("failed to backfill search text for task %s: %w", rec.ID, err)
		}
	}
	return nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(0)"
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return gormlogger.Info
	case "warn", "warning":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}
