// Package history keeps a sqlite log of completed and failed transfers.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	RoleServer = "server"
	RoleClient = "client"

	DirectionUpload   = "upload"
	DirectionDownload = "download"

	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Transfer struct {
	ID        uint   `gorm:"primaryKey"`
	Role      string `gorm:"index"`
	Direction string
	Peer      string
	Filename  string
	Bytes     int64
	Status    string
	Error     string
	CreatedAt time.Time
}

// Recorder is what sessions and client connections report transfers to.
type Recorder interface {
	Record(ctx context.Context, t Transfer) error
}

type Store struct {
	db *gorm.DB
}

func Open(path string, log *logrus.Logger) (*Store, error) {
	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	} else {
		cfg.Logger = gormlogger.Discard
	}

	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases coherent and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Transfer{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, t Transfer) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&t).Error
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transfer, error) {
	var transfers []Transfer
	err := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

func (s *Store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Transfer{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Recorder = (*Store)(nil)
