package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"copilotos/internal/models"
	"copilotos/internal/tools"
)

var ErrNotFound = errors.New("not found")

const (
	settingToolIDs    = "tools.selected"
	settingToolLegacy = "tools.legacy"
)

// Open opens the chat history at path and applies the schema. ":memory:"
// gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			model_id TEXT NOT NULL,
			last_user_prompt TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			msg_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'delivered',
			is_error INTEGER NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			tokens INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			doc_id TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			upload_status TEXT NOT NULL DEFAULT '',
			uploaded_at INTEGER NOT NULL DEFAULT 0,
			UNIQUE(chat_id, msg_id),
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return db, nil
}

func CreateChat(db *sql.DB, nowUnix int64, modelID string) (int64, error) {
	res, err := db.Exec(
		"INSERT INTO chats(created_at, updated_at, model_id, last_user_prompt) VALUES(?, ?, ?, '')",
		nowUnix,
		nowUnix,
		modelID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertMessage stores m under chatID. Timestamps are kept in milliseconds.
func InsertMessage(db *sql.DB, chatID int64, m models.Message) error {
	docID, filename, uploadStatus, uploadedAt := uploadColumns(m.File)
	_, err := db.Exec(
		`INSERT INTO messages(chat_id, msg_id, role, content, created_at, status, is_error, model, tokens, latency_ms, doc_id, filename, upload_status, uploaded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chatID,
		m.ID,
		string(m.Role),
		m.Content,
		m.CreatedAt.UnixMilli(),
		string(m.Status),
		m.IsError,
		m.Model,
		m.Tokens,
		m.Latency.Milliseconds(),
		docID,
		filename,
		uploadStatus,
		uploadedAt,
	)
	return err
}

// UpdateMessage rewrites the mutable fields of a stored message. The role and
// creation time never change.
func UpdateMessage(db *sql.DB, chatID int64, m models.Message) error {
	docID, filename, uploadStatus, uploadedAt := uploadColumns(m.File)
	res, err := db.Exec(
		`UPDATE messages SET content = ?, status = ?, is_error = ?, model = ?, tokens = ?, latency_ms = ?,
			doc_id = ?, filename = ?, upload_status = ?, uploaded_at = ?
		WHERE chat_id = ? AND msg_id = ?`,
		m.Content,
		string(m.Status),
		m.IsError,
		m.Model,
		m.Tokens,
		m.Latency.Milliseconds(),
		docID,
		filename,
		uploadStatus,
		uploadedAt,
		chatID,
		m.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

func uploadColumns(f *models.FileUpload) (string, string, string, int64) {
	if f == nil {
		return "", "", "", 0
	}
	var at int64
	if !f.UploadedAt.IsZero() {
		at = f.UploadedAt.UnixMilli()
	}
	return f.DocID, f.Filename, string(f.Status), at
}

func UpdateChatOnUser(db *sql.DB, chatID int64, nowUnix int64, modelID, lastUserPrompt string) error {
	_, err := db.Exec(
		"UPDATE chats SET updated_at = ?, model_id = ?, last_user_prompt = ? WHERE id = ?",
		nowUnix,
		modelID,
		lastUserPrompt,
		chatID,
	)
	return err
}

func TouchChat(db *sql.DB, chatID int64, nowUnix int64) error {
	_, err := db.Exec(
		"UPDATE chats SET updated_at = ? WHERE id = ?",
		nowUnix,
		chatID,
	)
	return err
}

// GetRecentChats returns the total chat count and one page of chats, most
// recently updated first.
func GetRecentChats(db *sql.DB, limit, offset int) (int, []models.ChatListItem, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM chats").Scan(&count); err != nil {
		return 0, nil, err
	}

	rows, err := db.Query(
		"SELECT id, updated_at, last_user_prompt, model_id FROM chats ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		limit,
		offset,
	)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := make([]models.ChatListItem, 0, limit)
	for rows.Next() {
		var it models.ChatListItem
		if err := rows.Scan(&it.ID, &it.UpdatedAtUnix, &it.LastUserPrompt, &it.ModelID); err != nil {
			return 0, nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

// GetChatMessages loads a conversation in insertion order.
func GetChatMessages(db *sql.DB, chatID int64) ([]models.Message, error) {
	rows, err := db.Query(
		`SELECT msg_id, role, content, created_at, status, is_error, model, tokens, latency_ms, doc_id, filename, upload_status, uploaded_at
		FROM messages WHERE chat_id = ? ORDER BY id ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			m                                models.Message
			role, status, uploadStatus       string
			docID, filename                  string
			createdAt, latency, uploadedAtMs int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &createdAt, &status, &m.IsError, &m.Model, &m.Tokens, &latency,
			&docID, &filename, &uploadStatus, &uploadedAtMs); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Status = models.Status(status)
		m.CreatedAt = time.UnixMilli(createdAt)
		m.Latency = time.Duration(latency) * time.Millisecond
		if uploadStatus != "" {
			m.File = &models.FileUpload{
				DocID:    docID,
				Filename: filename,
				Status:   models.UploadStatus(uploadStatus),
			}
			if uploadedAtMs > 0 {
				m.File.UploadedAt = time.UnixMilli(uploadedAtMs)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SaveToolSelection persists the armed tools both as the ordered list and as
// the legacy boolean map.
func SaveToolSelection(db *sql.DB, sel *tools.Selection) error {
	ids, err := json.Marshal(sel.IDs())
	if err != nil {
		return err
	}
	legacy, err := json.Marshal(sel.LegacyMap())
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range map[string][]byte{settingToolIDs: ids, settingToolLegacy: legacy} {
		if _, err := tx.Exec(
			"INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key,
			string(value),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadToolSelection restores the armed tools. Either stored form may be
// missing; an absent ordered list leaves the legacy map in charge.
func LoadToolSelection(db *sql.DB, vis tools.Visibility) (*tools.Selection, error) {
	var explicit []tools.ID
	var legacy map[string]bool

	raw, err := getSetting(db, settingToolIDs)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		explicit = []tools.ID{}
		if err := json.Unmarshal([]byte(raw), &explicit); err != nil {
			return nil, fmt.Errorf("decode %s: %w", settingToolIDs, err)
		}
	}

	raw, err = getSetting(db, settingToolLegacy)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
			return nil, fmt.Errorf("decode %s: %w", settingToolLegacy, err)
		}
	}

	return tools.NewSelection(explicit, legacy, vis), nil
}

// SaveLegacyToolMap stores only the legacy map, as older clients did.
func SaveLegacyToolMap(db *sql.DB, legacy map[string]bool) error {
	raw, err := json.Marshal(legacy)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		"INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		settingToolLegacy,
		string(raw),
	)
	return err
}

func getSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}
