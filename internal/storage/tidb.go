package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/maneesh/musicbox/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

var tidbSchema = []string{
	`CREATE TABLE IF NOT EXISTS uploads (
		id VARCHAR(36) PRIMARY KEY,
		title VARCHAR(512) NOT NULL,
		artist VARCHAR(512) NOT NULL,
		album VARCHAR(512) NOT NULL,
		audio_url VARCHAR(1024) NOT NULL,
		cover_url VARCHAR(1024) NOT NULL,
		thumbnail_url VARCHAR(1024) NOT NULL DEFAULT '',
		uploaded_by VARCHAR(255) NOT NULL,
		duration_seconds DOUBLE NULL,
		play_count BIGINT NOT NULL DEFAULT 0,
		audio_sha256 CHAR(64) NOT NULL DEFAULT '',
		uploaded_at DATETIME(6) NOT NULL,
		INDEX idx_uploaded_by (uploaded_by),
		INDEX idx_uploaded_at (uploaded_at),
		INDEX idx_play_count (play_count)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username VARCHAR(255) PRIMARY KEY,
		password VARCHAR(255) NOT NULL,
		saved_songs JSON NOT NULL
	)`,
}

// TiDBClient is a DocumentStore on TiDB/MySQL. User aggregates are stored
// as one row with the saved-song list in a JSON column.
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client and creates missing tables
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	tc := &TiDBClient{db: db}
	if err := tc.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return tc, nil
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

func (tc *TiDBClient) ensureSchema(ctx context.Context) error {
	for _, stmt := range tidbSchema {
		if _, err := tc.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateUpload inserts upload metadata with tracing
func (tc *TiDBClient) CreateUpload(ctx context.Context, rec *models.UploadRecord) error {
	id := uuid.New().String()
	ctx, span := tracer.Start(ctx, "tidb.create_upload",
		trace.WithAttributes(
			attribute.String("upload_id", id),
			attribute.String("title", rec.Title),
			attribute.String("uploaded_by", rec.UploadedBy),
		),
	)
	defer span.End()

	query := `INSERT INTO uploads (id, title, artist, album, audio_url, cover_url, thumbnail_url,
			  uploaded_by, duration_seconds, play_count, audio_sha256, uploaded_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var duration sql.NullFloat64
	if rec.DurationSeconds != nil {
		duration = sql.NullFloat64{Float64: *rec.DurationSeconds, Valid: true}
	}

	_, err := tc.db.ExecContext(ctx, query, id, rec.Title, rec.Artist, rec.Album, rec.AudioURL,
		rec.CoverURL, rec.ThumbnailURL, rec.UploadedBy, duration, rec.PlayCount, rec.AudioSHA256, rec.UploadedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	rec.ID = id
	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// ListRecentUploads retrieves the newest uploads with tracing
func (tc *TiDBClient) ListRecentUploads(ctx context.Context, limit int) ([]*models.UploadRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_recent_uploads",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	query := `SELECT id, title, artist, album, audio_url, cover_url, thumbnail_url,
			  uploaded_by, duration_seconds, play_count, audio_sha256, uploaded_at
			  FROM uploads
			  ORDER BY uploaded_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := tc.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	records := make([]*models.UploadRecord, 0)
	for rows.Next() {
		var rec models.UploadRecord
		var duration sql.NullFloat64
		err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Artist,
			&rec.Album,
			&rec.AudioURL,
			&rec.CoverURL,
			&rec.ThumbnailURL,
			&rec.UploadedBy,
			&duration,
			&rec.PlayCount,
			&rec.AudioSHA256,
			&rec.UploadedAt,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		if duration.Valid {
			d := duration.Float64
			rec.DurationSeconds = &d
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(records)))
	return records, nil
}

// IncrementPlayCount bumps play_count by one
func (tc *TiDBClient) IncrementPlayCount(ctx context.Context, uploadID string) error {
	ctx, span := tracer.Start(ctx, "tidb.increment_play_count",
		trace.WithAttributes(attribute.String("upload_id", uploadID)),
	)
	defer span.End()

	res, err := tc.db.ExecContext(ctx, `UPDATE uploads SET play_count = play_count + 1 WHERE id = ?`, uploadID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update play count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("upload %q: %w", uploadID, ErrNotFound)
	}
	return nil
}

// CreateUser inserts a user row
func (tc *TiDBClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "tidb.create_user",
		trace.WithAttributes(attribute.String("username", user.Username)),
	)
	defer span.End()

	songs, err := marshalSongs(user.SavedSongs)
	if err != nil {
		return err
	}

	_, err = tc.db.ExecContext(ctx,
		`INSERT INTO users (username, password, saved_songs) VALUES (?, ?, ?)`,
		user.Username, user.Password, songs)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
		}
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindUser loads a user row and decodes its saved songs
func (tc *TiDBClient) FindUser(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user",
		trace.WithAttributes(attribute.String("username", username)),
	)
	defer span.End()

	var user models.User
	var songs []byte
	err := tc.db.QueryRowContext(ctx,
		`SELECT username, password, saved_songs FROM users WHERE username = ?`, username,
	).Scan(&user.Username, &user.Password, &songs)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := json.Unmarshal(songs, &user.SavedSongs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode saved songs: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// SaveUser overwrites the user row
func (tc *TiDBClient) SaveUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "tidb.save_user",
		trace.WithAttributes(
			attribute.String("username", user.Username),
			attribute.Int("saved_songs", len(user.SavedSongs)),
		),
	)
	defer span.End()

	songs, err := marshalSongs(user.SavedSongs)
	if err != nil {
		return err
	}

	res, err := tc.db.ExecContext(ctx,
		`UPDATE users SET password = ?, saved_songs = ? WHERE username = ?`,
		user.Password, songs, user.Username)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update user: %w", err)
	}
	// MySQL reports 0 affected rows for an unchanged row, so only a
	// missing user is checked explicitly.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := tc.FindUser(ctx, user.Username); err != nil {
			return err
		}
	}
	return nil
}

func marshalSongs(songs []models.SavedSongEntry) ([]byte, error) {
	if songs == nil {
		songs = []models.SavedSongEntry{}
	}
	data, err := json.Marshal(songs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode saved songs: %w", err)
	}
	return data, nil
}
