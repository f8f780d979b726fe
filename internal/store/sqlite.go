package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/Necoverse/awa/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); !isMemoryDSN(dsn) && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so schema and data survive across goroutines.
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// AppendTurn implements Store.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) (string, error) {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, user_message, assistant_message, audio_path, video_path, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.UserText, turn.AssistantText, turn.AudioRef, turn.VideoRef, ts)
	if err != nil {
		return "", fmt.Errorf("failed to append turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read turn id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_message, assistant_message, audio_path, video_path, timestamp
		FROM conversations
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	turns := []domain.ConversationTurn{}
	for rows.Next() {
		var (
			turn  domain.ConversationTurn
			id    int64
			audio sql.NullString
			video sql.NullString
		)
		if err := rows.Scan(&id, &turn.SessionID, &turn.UserText, &turn.AssistantText, &audio, &video, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.ID = strconv.FormatInt(id, 10)
		if audio.Valid {
			turn.AudioRef = &audio.String
		}
		if video.Valid {
			turn.VideoRef = &video.String
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// MergeProfile implements Store. The read-modify-write runs in one
// transaction; concurrent merges for the same user are last-write-wins
// per key with no versioning.
func (s *SQLiteStore) MergeProfile(ctx context.Context, userID string, preferences, interaction map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prefsJSON, interJSON sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT preferences, interaction_history FROM user_profiles WHERE user_id = ?", userID).
		Scan(&prefsJSON, &interJSON)

	switch {
	case err == sql.ErrNoRows:
		mergedPrefs, merr := mergeJSON("", preferences)
		if merr != nil {
			return merr
		}
		mergedInter, merr := mergeJSON("", interaction)
		if merr != nil {
			return merr
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, preferences, interaction_history, last_seen)
			VALUES (?, ?, ?, ?)`,
			userID, mergedPrefs, mergedInter, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read profile: %w", err)
	default:
		mergedPrefs, merr := mergeJSON(prefsJSON.String, preferences)
		if merr != nil {
			return merr
		}
		mergedInter, merr := mergeJSON(interJSON.String, interaction)
		if merr != nil {
			return merr
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_profiles
			SET preferences = ?, interaction_history = ?, last_seen = ?
			WHERE user_id = ?`,
			mergedPrefs, mergedInter, time.Now().UTC(), userID); err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
	}

	return tx.Commit()
}

// mergeJSON overlays delta onto the stored JSON object: new keys added,
// existing keys overwritten, absent keys untouched.
func mergeJSON(stored string, delta map[string]any) (string, error) {
	current := map[string]any{}
	if stored != "" {
		if err := json.Unmarshal([]byte(stored), &current); err != nil {
			return "", fmt.Errorf("failed to parse stored profile field: %w", err)
		}
	}
	for k, v := range delta {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile field: %w", err)
	}
	return string(merged), nil
}

// GetProfile implements Store.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var (
		profile  domain.UserProfile
		prefs    sql.NullString
		inter    sql.NullString
		lastSeen sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, preferences, interaction_history, last_seen
		FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&profile.UserID, &prefs, &inter, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	profile.Preferences = map[string]any{}
	profile.InteractionHistory = map[string]any{}
	if prefs.Valid && prefs.String != "" {
		if err := json.Unmarshal([]byte(prefs.String), &profile.Preferences); err != nil {
			return nil, fmt.Errorf("failed to parse preferences: %w", err)
		}
	}
	if inter.Valid && inter.String != "" {
		if err := json.Unmarshal([]byte(inter.String), &profile.InteractionHistory); err != nil {
			return nil, fmt.Errorf("failed to parse interaction history: %w", err)
		}
	}
	if lastSeen.Valid {
		profile.LastSeen = lastSeen.Time
	}
	return &profile, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
