package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "adhanbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl          (append-only JSON Lines)
//   - <prefix>.users.snapshot.json  (periodic snapshot)
//   - <prefix>.users.journal.jsonl  (append-only journal of full records)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	users        map[string]UserSettings

	writes int
}

const compactEvery = 200

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	snapPath := prefix + ".users.snapshot.json"
	journalPath := prefix + ".users.journal.jsonl"

	users := map[string]UserSettings{}
	if err := loadSnapshot(snapPath, users); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("users snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, users); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("users journal replay failed", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("users", len(users)))
	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		users:        users,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journalFile.Close())
		s.journalFile = nil
	}
	if s.auditFile != nil {
		errs = append(errs, s.auditFile.Close())
		s.auditFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) GetUser(ctx context.Context, userID string) (UserSettings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return UserSettings{}, ErrNotFound
	}
	return u, nil
}

func (s *fileStore) PutUser(ctx context.Context, u UserSettings) error {
	_ = ctx
	if err := u.Validate(); err != nil {
		return err
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.UserID]; ok {
		u.LoopActive = prev.LoopActive
	}
	return s.writeLocked(u)
}

func (s *fileStore) SetLoopActive(ctx context.Context, userID string, active bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimSpace(userID)]
	if !ok || u.LoopActive == active {
		return nil
	}
	u.LoopActive = active
	u.UpdatedAt = time.Now().UTC()
	return s.writeLocked(u)
}

func (s *fileStore) ForEachUser(ctx context.Context, fn func(UserSettings) error) error {
	s.mu.Lock()
	list := make([]UserSettings, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	for _, u := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) writeLocked(u UserSettings) error {
	if s.journalFile == nil {
		return errors.New("users journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(u); err != nil {
		return err
	}
	s.users[u.UserID] = u
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("users compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.users); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]UserSettings) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]UserSettings
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]UserSettings) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var u UserSettings
		if err := json.Unmarshal(sc.Bytes(), &u); err != nil || u.UserID == "" {
			// torn tail write; later records still apply
			continue
		}
		out[u.UserID] = u
	}
	return sc.Err()
}
