package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/jibinmichael/paperforslack/pkg/models"
)

const installationsSchema = `
CREATE TABLE IF NOT EXISTS installations (
	team_id      TEXT PRIMARY KEY,
	team_name    TEXT NOT NULL DEFAULT '',
	bot_token    TEXT NOT NULL,
	bot_user_id  TEXT NOT NULL DEFAULT '',
	scopes       TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL DEFAULT 'multi',
	installed_at TIMESTAMP NOT NULL
);`

// SQLiteStore persists installations so OAuth grants survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and migrates) the installation database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open installation db: %w", err)
	}
	if _, err := db.Exec(installationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate installation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, teamID string) (models.Installation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT team_id, team_name, bot_token, bot_user_id, scopes, mode, installed_at
		 FROM installations WHERE team_id = ?`, teamID)
	inst, err := scanInstallation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Installation{}, ErrNotInstalled
	}
	return inst, err
}

func (s *SQLiteStore) Put(ctx context.Context, inst models.Installation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO installations (team_id, team_name, bot_token, bot_user_id, scopes, mode, installed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(team_id) DO UPDATE SET
			team_name = excluded.team_name,
			bot_token = excluded.bot_token,
			bot_user_id = excluded.bot_user_id,
			scopes = excluded.scopes,
			mode = excluded.mode,
			installed_at = excluded.installed_at`,
		inst.TeamID, inst.TeamName, inst.BotToken, inst.BotUserID,
		strings.Join(inst.Scopes, ","), string(inst.Mode), inst.InstalledAt.UTC())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, teamID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE team_id = ?`, teamID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotInstalled
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.Installation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id, team_name, bot_token, bot_user_id, scopes, mode, installed_at
		 FROM installations ORDER BY installed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstallation(row rowScanner) (models.Installation, error) {
	var inst models.Installation
	var scopes, mode string
	var installedAt time.Time
	err := row.Scan(&inst.TeamID, &inst.TeamName, &inst.BotToken, &inst.BotUserID, &scopes, &mode, &installedAt)
	if err != nil {
		return models.Installation{}, err
	}
	if scopes != "" {
		inst.Scopes = strings.Split(scopes, ",")
	}
	inst.Mode = models.InstallMode(mode)
	inst.InstalledAt = installedAt
	return inst, nil
}
