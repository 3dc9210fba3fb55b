package store

import (
	"context"
	"errors"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomState is a room's last persisted canvas snapshot. Shapes holds
// the serialized shape records in draw order; their contents are
// opaque to the relay.
type RoomState struct {
	RoomID    int64    `gorm:"primaryKey"`
	Shapes    []string `gorm:"serializer:json"`
	UpdatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Connect opens the database from DATABASE_URL and migrates the room
// state table.
func Connect() (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RoomState{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// UpsertRoomState replaces the whole stored snapshot for roomID. This
// is a full-state overwrite, never a partial patch.
func (s *Store) UpsertRoomState(ctx context.Context, roomID int64, shapes []string) error {
	state := RoomState{RoomID: roomID, Shapes: shapes, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"shapes", "updated_at"}),
		}).
		Create(&state).Error
}

// GetRoomState returns the stored snapshot for roomID, or
// gorm.ErrRecordNotFound when the room was never persisted.
func (s *Store) GetRoomState(ctx context.Context, roomID int64) ([]string, error) {
	var state RoomState
	if err := s.db.WithContext(ctx).First(&state, "room_id = ?", roomID).Error; err != nil {
		return nil, err
	}
	return state.Shapes, nil
}
