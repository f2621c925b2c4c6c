package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shotlog/models"
)

// Open connects to the database selected by driver ("postgres", "mysql" or "sqlite").
func Open(driver, dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is empty")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if strings.EqualFold(driver, "sqlite") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
			}
		}
	}
	return db, nil
}

// Migrate creates or updates the sessions and shots tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Session{}, &models.Shot{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GormRepository is the relational Repository.
type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRepository wraps db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: time.Now}
}

func (r *GormRepository) FindSession(ctx context.Context, id uint) (*models.Session, error) {
	var s models.Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("find session %d: %w", id, err)
	}
	return &s, nil
}

func (r *GormRepository) CreateSession(ctx context.Context, name, notes string) (*models.Session, error) {
	s := models.Session{Name: name, Notes: notes, CreatedAt: r.now()}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

func (r *GormRepository) ListSessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	err := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Select("sessions.*, (SELECT COUNT(*) FROM shots WHERE shots.session_id = sessions.id) AS shot_count").
		Order("sessions.created_at DESC, sessions.id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (r *GormRepository) DeleteSession(ctx context.Context, id uint) ([]string, error) {
	var images []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Session
		if err := tx.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("session %d: %w", id, ErrNotFound)
			}
			return err
		}
		if err := tx.Model(&models.Shot{}).Where("session_id = ?", id).Pluck("image", &images).Error; err != nil {
			return err
		}
		// Explicit delete so databases without enforced foreign keys cascade too.
		if err := tx.Where("session_id = ?", id).Delete(&models.Shot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&s).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete session %d: %w", id, err)
	}
	return images, nil
}

func (r *GormRepository) CreateShot(ctx context.Context, session *models.Session, image string) (*models.Shot, error) {
	if session == nil || session.ID == 0 {
		return nil, errors.New("create shot: session is required")
	}
	if image == "" {
		return nil, errors.New("create shot: image is required")
	}
	shot := models.Shot{SessionID: session.ID, Timestamp: r.now(), Image: image}
	if err := r.db.WithContext(ctx).Create(&shot).Error; err != nil {
		return nil, fmt.Errorf("create shot: %w", err)
	}
	return &shot, nil
}

func (r *GormRepository) UpdateShot(ctx context.Context, shot *models.Shot, patch models.ShotPatch) (*models.Shot, error) {
	shot.Apply(patch)
	if err := r.db.WithContext(ctx).Save(shot).Error; err != nil {
		return nil, fmt.Errorf("update shot %d: %w", shot.ID, err)
	}
	return shot, nil
}

func (r *GormRepository) ListShots(ctx context.Context, sessionID uint) ([]models.Shot, error) {
	if _, err := r.FindSession(ctx, sessionID); err != nil {
		return nil, err
	}
	out := []models.Shot{}
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list shots for session %d: %w", sessionID, err)
	}
	return out, nil
}

// ImagePaths returns the image path of every stored shot.
func (r *GormRepository) ImagePaths(ctx context.Context) ([]string, error) {
	var images []string
	if err := r.db.WithContext(ctx).Model(&models.Shot{}).Distinct().Pluck("image", &images).Error; err != nil {
		return nil, fmt.Errorf("list shot images: %w", err)
	}
	return images, nil
}
