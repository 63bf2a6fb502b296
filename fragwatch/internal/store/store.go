// Package store persists tracked players and per-group delivery schedules
// in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrPlayerExists = errors.New("store: player already tracked")
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
    group_id   TEXT NOT NULL,
    username   TEXT NOT NULL,
    platform   TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, username)
);
CREATE TABLE IF NOT EXISTS schedules (
    group_id    TEXT PRIMARY KEY,
    channel_ref TEXT NOT NULL,
    time_of_day TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// Player is a tracked player within a group. Immutable once created.
type Player struct {
	GroupID   string    `json:"group_id"`
	Username  string    `json:"username"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Schedule is a group's recurring delivery configuration.
type Schedule struct {
	GroupID    string    `json:"group_id"`
	ChannelRef string    `json:"channel_ref"`
	TimeOfDay  string    `json:"time_of_day"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store wraps a *sql.DB that already carries the schema.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps db. Use Open to also apply pragmas and the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// AddPlayer registers a player. A second registration of the same
// (group, username) fails with ErrPlayerExists.
func (s *Store) AddPlayer(ctx context.Context, p Player) (Player, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	res, err := s.exec(ctx,
		`INSERT INTO players (group_id, username, platform, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id, username) DO NOTHING`,
		p.GroupID, p.Username, p.Platform, p.CreatedAt.UnixMilli())
	if err != nil {
		return Player{}, fmt.Errorf("store: add player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Player{}, ErrPlayerExists
	}
	return p, nil
}

// RemovePlayer deletes a player. Removing an unknown player returns ErrNotFound.
func (s *Store) RemovePlayer(ctx context.Context, groupID, username string) error {
	res, err := s.exec(ctx, `DELETE FROM players WHERE group_id = ? AND username = ?`, groupID, username)
	if err != nil {
		return fmt.Errorf("store: remove player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Players lists a group's players ordered by username.
func (s *Store) Players(ctx context.Context, groupID string) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, username, platform, created_at FROM players
		 WHERE group_id = ? ORDER BY username`, groupID)
	if err != nil {
		return nil, fmt.Errorf("store: list players: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		var (
			p  Player
			ms int64
		)
		if err := rows.Scan(&p.GroupID, &p.Username, &p.Platform, &ms); err != nil {
			return nil, fmt.Errorf("store: scan player: %w", err)
		}
		p.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Player returns one player or ErrNotFound.
func (s *Store) Player(ctx context.Context, groupID, username string) (Player, error) {
	p := Player{GroupID: groupID, Username: username}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, created_at FROM players WHERE group_id = ? AND username = ?`,
		groupID, username).Scan(&p.Platform, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("store: get player: %w", err)
	}
	p.CreatedAt = time.UnixMilli(ms).UTC()
	return p, nil
}

// PutSchedule upserts the group's schedule; the whole row is replaced.
func (s *Store) PutSchedule(ctx context.Context, sc Schedule) (Schedule, error) {
	sc.UpdatedAt = s.now().UTC()
	_, err := s.exec(ctx,
		`INSERT INTO schedules (group_id, channel_ref, time_of_day, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id) DO UPDATE SET
		   channel_ref = excluded.channel_ref,
		   time_of_day = excluded.time_of_day,
		   updated_at  = excluded.updated_at`,
		sc.GroupID, sc.ChannelRef, sc.TimeOfDay, sc.UpdatedAt.UnixMilli())
	if err != nil {
		return Schedule{}, fmt.Errorf("store: put schedule: %w", err)
	}
	return sc, nil
}

// DeleteSchedule removes the group's schedule. Deleting a missing row is not an error.
func (s *Store) DeleteSchedule(ctx context.Context, groupID string) error {
	if _, err := s.exec(ctx, `DELETE FROM schedules WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("store: delete schedule: %w", err)
	}
	return nil
}

// GetSchedule returns the group's schedule or ErrNotFound.
func (s *Store) GetSchedule(ctx context.Context, groupID string) (Schedule, error) {
	sc := Schedule{GroupID: groupID}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_ref, time_of_day, updated_at FROM schedules WHERE group_id = ?`,
		groupID).Scan(&sc.ChannelRef, &sc.TimeOfDay, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("store: get schedule: %w", err)
	}
	sc.UpdatedAt = time.UnixMilli(ms).UTC()
	return sc, nil
}

// Schedules lists every persisted schedule ordered by group.
func (s *Store) Schedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, channel_ref, time_of_day, updated_at FROM schedules ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var (
			sc Schedule
			ms int64
		)
		if err := rows.Scan(&sc.GroupID, &sc.ChannelRef, &sc.TimeOfDay, &ms); err != nil {
			return nil, fmt.Errorf("store: scan schedule: %w", err)
		}
		sc.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, sc)
	}
	return out, rows.Err()
}
