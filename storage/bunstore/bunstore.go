// Package bunstore persists the auth snapshot in a SQLite table via Bun, for
// clients that need the session to survive process restarts. External
// changes (another process logging out) are detected by polling the record
// revision and surfaced through the Storage watch callback.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type record struct {
	bun.BaseModel `bun:"table:auth_storage,alias:ast"`
	Key           string    `bun:"key,pk"`
	Value         []byte    `bun:"value,notnull"`
	Revision      int64     `bun:"revision,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// DefaultPollInterval is how often the watcher checks for external writes.
var DefaultPollInterval = 2 * time.Second

// Store is a Storage implementation backed by a Bun SQLite database.
type Store struct {
	db      *bun.DB
	ownsDB  bool
	timeout time.Duration

	mu       sync.Mutex
	watchers map[int]func(key string)
	nextID   int
	// seen tracks the last revision observed per key; own holds revisions
	// this handle wrote, so self-originated writes never fire watchers.
	seen   map[string]int64
	own    map[string]int64
	ownDel map[string]bool

	pollEvery time.Duration
	stopPoll  chan struct{}
	pollOnce  sync.Once
}

// Open creates (or opens) the SQLite database at path and ensures the
// storage table exists.
func Open(path string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := New(db)
	s.ownsDB = true

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := db.NewCreateTable().Model((*record)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing Bun database. The caller keeps ownership of db.
func New(db *bun.DB) *Store {
	return &Store{
		db:        db,
		timeout:   5 * time.Second,
		watchers:  map[int]func(string){},
		seen:      map[string]int64{},
		own:       map[string]int64{},
		ownDel:    map[string]bool{},
		pollEvery: DefaultPollInterval,
		stopPoll:  make(chan struct{}),
	}
}

// WithPollInterval overrides how often external changes are checked for.
func (s *Store) WithPollInterval(d time.Duration) *Store {
	if d > 0 {
		s.pollEvery = d
	}
	return s
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	ctx, cancel := s.opCtx()
	defer cancel()

	rec := &record{}
	err := s.db.NewSelect().Model(rec).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.seen[key] = rec.Revision
	s.mu.Unlock()

	cp := make([]byte, len(rec.Value))
	copy(cp, rec.Value)
	return cp, true, nil
}

func (s *Store) Set(key string, value []byte) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	rec := &record{
		Key:       key,
		Value:     value,
		Revision:  time.Now().UnixNano(),
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("revision = EXCLUDED.revision").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seen[key] = rec.Revision
	s.own[key] = rec.Revision
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	if _, err := s.db.NewDelete().Model((*record)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.seen, key)
	delete(s.own, key)
	s.ownDel[key] = true
	s.mu.Unlock()
	return nil
}

// Watch registers fn for external changes. The first watcher starts the
// polling goroutine.
func (s *Store) Watch(fn func(key string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	s.pollOnce.Do(func() {
		go s.poll()
	})

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Close stops the poller and closes the database when this store opened it.
func (s *Store) Close() error {
	select {
	case <-s.stopPoll:
	default:
		close(s.stopPoll)
	}

	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) poll() {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.checkExternal()
		}
	}
}

// checkExternal diffs the table against the last observed revisions and
// fires watchers for keys changed by another handle, removals included.
func (s *Store) checkExternal() {
	ctx, cancel := s.opCtx()
	defer cancel()

	var recs []record
	if err := s.db.NewSelect().Model(&recs).Scan(ctx); err != nil {
		return
	}

	current := make(map[string]int64, len(recs))
	for _, rec := range recs {
		current[rec.Key] = rec.Revision
	}

	var changed []string

	s.mu.Lock()
	for key, rev := range current {
		delete(s.ownDel, key)
		if s.own[key] == rev {
			continue
		}
		if s.seen[key] != rev {
			s.seen[key] = rev
			changed = append(changed, key)
		}
	}
	for key := range s.seen {
		if _, ok := current[key]; !ok {
			delete(s.seen, key)
			delete(s.own, key)
			if !s.ownDel[key] {
				changed = append(changed, key)
			}
			delete(s.ownDel, key)
		}
	}
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, key := range changed {
		for _, fn := range fns {
			fn(key)
		}
	}
}

func (s *Store) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
