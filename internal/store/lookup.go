package store

import (
	"context"
	"fmt"

	"github.com/runger/cache-dash-h/internal/fingerprint"
)

type candidate struct {
	id         int64
	helpText   []byte
	exitStatus int
}

type depFile struct {
	path        string
	fingerprint string
}

// Lookup finds the newest entry for cmdFP whose recorded dependency files
// still match their on-disk content. Candidates are checked newest first; a
// candidate with any changed (or renamed, or newly unreadable) file is
// stale and the next one is tried. Stale entries stay in place. Returns
// ErrNotCached when nothing matches.
func (s *Store) Lookup(ctx context.Context, cmdFP string) (*Entry, error) {
	if !s.schemaReady {
		return nil, ErrNotCached
	}

	// Candidates are collected before validation: the single connection
	// cannot serve the per-candidate file query while the candidate rows
	// are still open.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, help_text, exit_status
		FROM commands
		WHERE fingerprint = ?
		ORDER BY id DESC
	`, cmdFP)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.helpText, &c.exitStatus); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan command: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	rows.Close()

	for _, c := range candidates {
		deps, err := s.filesFor(ctx, c.id)
		if err != nil {
			return nil, err
		}
		if len(deps) == 0 {
			// An entry whose file set was never recorded can never be
			// validated; skip rather than replay blindly.
			continue
		}
		if s.depsMatch(deps) {
			return &Entry{ID: c.id, HelpText: c.helpText, ExitStatus: c.exitStatus}, nil
		}
		s.logger.Debug("stale cache entry", "id", c.id)
	}

	return nil, ErrNotCached
}

func (s *Store) filesFor(ctx context.Context, commandID int64) ([]depFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, f.fingerprint
		FROM files f
		JOIN command_files cf ON cf.file_id = f.id
		WHERE cf.command_id = ?
	`, commandID)
	if err != nil {
		return nil, fmt.Errorf("query files for command %d: %w", commandID, err)
	}
	defer rows.Close()

	var deps []depFile
	for rows.Next() {
		var d depFile
		if err := rows.Scan(&d.path, &d.fingerprint); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return deps, nil
}

func (s *Store) depsMatch(deps []depFile) bool {
	for _, d := range deps {
		current, err := fingerprint.File(d.path, true)
		if err != nil || current != d.fingerprint {
			return false
		}
	}
	return true
}

// Touch records a replay by bumping the entry's atime. No-op on a read-only
// store.
func (s *Store) Touch(ctx context.Context, id int64) error {
	if s.readOnly {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE commands SET atime = ? WHERE id = ?", now(), id); err != nil {
		return fmt.Errorf("update atime for entry %d: %w", id, err)
	}
	return nil
}
