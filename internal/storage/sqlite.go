package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "adhanbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const userColumns = `user_id, country, city, method, school, timezone, loop_active, updated_at`

func (s *sqliteStore) GetUser(ctx context.Context, userID string) (UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, strings.TrimSpace(userID))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) PutUser(ctx context.Context, u UserSettings) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   country=excluded.country, city=excluded.city, method=excluded.method,
		   school=excluded.school, timezone=excluded.timezone,
		   updated_at=excluded.updated_at`,
		u.UserID, u.Country, u.City, u.CalculationMethod, u.AsrSchool, u.Timezone,
		boolInt(u.LoopActive), u.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SetLoopActive(ctx context.Context, userID string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET loop_active = ?, updated_at = ? WHERE user_id = ?`,
		boolInt(active), time.Now().UTC().Format(time.RFC3339Nano), strings.TrimSpace(userID),
	)
	return err
}

func (s *sqliteStore) ForEachUser(ctx context.Context, fn func(UserSettings) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return err
	}
	// Collect first: fn may call back into the store and MaxOpenConns is 1.
	var list []UserSettings
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		list = append(list, u)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range list {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, user_id, platform, action, detail, ok, err) VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.UserID, nullStr(e.Platform), e.Action,
		nullStr(e.Detail), boolInt(e.OK), nullStr(e.Error),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (UserSettings, error) {
	var (
		u       UserSettings
		active  int
		updated string
	)
	if err := r.Scan(&u.UserID, &u.Country, &u.City, &u.CalculationMethod, &u.AsrSchool, &u.Timezone, &active, &updated); err != nil {
		return UserSettings{}, err
	}
	u.LoopActive = active != 0
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		u.UpdatedAt = t
	}
	return u, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
