package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/vocanote/internal/apperr"
)

// ListNotes returns userID's notes, most recently updated first.
func (s *SQLStore) ListNotes(ctx context.Context, userID string) ([]NoteRow, error) {
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, folder_id, title, paragraphs, created_at, updated_at
		FROM notes
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("remote: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var r NoteRow
		var folder sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &folder, &r.Title, &r.Paragraphs, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("remote: scan note: %w", err)
		}
		if folder.Valid {
			f := folder.String
			r.FolderID = &f
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertNote writes the row. An existing row is replaced only when it belongs
// to the same user and is not newer than the incoming one.
func (s *SQLStore) UpsertNote(ctx context.Context, r NoteRow) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(`
		INSERT INTO notes (id, user_id, folder_id, title, paragraphs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder_id  = excluded.folder_id,
			title      = excluded.title,
			paragraphs = excluded.paragraphs,
			updated_at = excluded.updated_at
		WHERE notes.user_id = excluded.user_id
		  AND notes.updated_at <= excluded.updated_at
	`), r.ID, r.UserID, nullable(r.FolderID), r.Title, r.Paragraphs, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("remote: upsert note %s: %w", r.ID, err)
	}
	return nil
}

// DeleteNote removes the note only when it is owned by userID.
func (s *SQLStore) DeleteNote(ctx context.Context, id, userID string) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(`DELETE FROM notes WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("remote: delete note %s: %w", id, err)
	}
	return nil
}

// ListFolders returns userID's folders in creation order.
func (s *SQLStore) ListFolders(ctx context.Context, userID string) ([]FolderRow, error) {
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, name, created_at
		FROM folders
		WHERE user_id = ?
		ORDER BY created_at ASC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("remote: list folders: %w", err)
	}
	defer rows.Close()

	var out []FolderRow
	for rows.Next() {
		var r FolderRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("remote: scan folder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertFolder inserts or renames a folder owned by the row's user.
func (s *SQLStore) UpsertFolder(ctx context.Context, r FolderRow) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(`
		INSERT INTO folders (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
		WHERE folders.user_id = excluded.user_id
	`), r.ID, r.UserID, r.Name, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("remote: upsert folder %s: %w", r.ID, err)
	}
	return nil
}

// DeleteFolder removes the folder only when it is owned by userID.
func (s *SQLStore) DeleteFolder(ctx context.Context, id, userID string) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(`DELETE FROM folders WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("remote: delete folder %s: %w", id, err)
	}
	return nil
}

// FindUserByAuthID looks up the mapping row for an authenticated identity.
func (s *SQLStore) FindUserByAuthID(ctx context.Context, authUserID string) (*UserRow, error) {
	var r UserRow
	err := s.conn.QueryRowContext(ctx, s.rebind(`SELECT id, auth_user_id FROM users WHERE auth_user_id = ?`), authUserID).
		Scan(&r.ID, &r.AuthUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", authUserID)
	}
	if err != nil {
		return nil, fmt.Errorf("remote: find user: %w", err)
	}
	return &r, nil
}

// InsertUser creates a mapping row. A duplicate identity yields apperr.ErrConflict.
func (s *SQLStore) InsertUser(ctx context.Context, r UserRow) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(`INSERT INTO users (id, auth_user_id) VALUES (?, ?)`), r.ID, r.AuthUserID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("user", r.AuthUserID)
		}
		return fmt.Errorf("remote: insert user: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
