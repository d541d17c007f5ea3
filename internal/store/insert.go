package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/runger/cache-dash-h/internal/fingerprint"
)

// Insert records a freshly traced invocation: the command row plus one file
// row and association per dependency, all in one transaction, so a crash
// leaves either everything or nothing. File rows are deduplicated across
// the whole table by content fingerprint. On a read-only store Insert is a
// successful no-op.
func (s *Store) Insert(ctx context.Context, argv []string, cmdFP string, helpText []byte, exitStatus int, deps []string) error {
	if s.readOnly {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO commands (argv, fingerprint, ctime, atime, help_text, exit_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, strings.Join(argv, " "), cmdFP, ts, ts, helpText, exitStatus)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	commandID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("command id: %w", err)
	}

	for _, path := range deps {
		fp, err := fingerprint.File(path, false)
		if err != nil {
			return fmt.Errorf("fingerprint dependency: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO files (path, fingerprint) VALUES (?, ?)", path, fp)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", path, err)
		}

		var fileID int64
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("file rows affected: %w", err)
		} else if n == 0 {
			// Another entry (or a concurrent writer) already holds this
			// content.
			row := tx.QueryRowContext(ctx, "SELECT id FROM files WHERE fingerprint = ?", fp)
			if err := row.Scan(&fileID); err != nil {
				return fmt.Errorf("resolve file %s: %w", path, err)
			}
		} else if fileID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("file id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO command_files (command_id, file_id) VALUES (?, ?)",
			commandID, fileID); err != nil {
			return fmt.Errorf("associate file %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}
