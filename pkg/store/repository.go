package store

import (
	"context"
	"errors"

	"shotlog/models"
)

// ErrNotFound is returned when a session or shot does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists sessions and their shots.
type Repository interface {
	// FindSession returns ErrNotFound when id does not exist.
	FindSession(ctx context.Context, id uint) (*models.Session, error)
	CreateSession(ctx context.Context, name, notes string) (*models.Session, error)
	// ListSessions returns every session with its shot count, newest first.
	ListSessions(ctx context.Context) ([]models.Session, error)
	// DeleteSession removes the session and its shots and returns the image
	// paths the deleted shots referenced.
	DeleteSession(ctx context.Context, id uint) ([]string, error)

	CreateShot(ctx context.Context, session *models.Session, image string) (*models.Shot, error)
	UpdateShot(ctx context.Context, shot *models.Shot, patch models.ShotPatch) (*models.Shot, error)
	// ListShots returns the session's shots, newest first, or ErrNotFound for an unknown session.
	ListShots(ctx context.Context, sessionID uint) ([]models.Shot, error)
}
