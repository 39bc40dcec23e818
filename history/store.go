// Copyright 2026 The Warden Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history keeps and forwards the transitions of watches.  Both
// the Store and the Publisher are warden.Sinks.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/warden"
	_ "github.com/mattn/go-sqlite3"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
	busyTimeoutMs   = 5000
	openTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id         TEXT PRIMARY KEY,
	watch      TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	fatal      INTEGER NOT NULL DEFAULT 0,
	at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_watch_at ON transitions (watch, at);
`

// Store records transitions in an SQLite database.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the database at path.  When keep is positive,
// only the newest keep transitions of each watch are retained.
func Open(path string, keep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	_ = os.Chmod(path, filePermissions)
	return &Store{db: db, keep: keep}, nil
}

// Send implements warden.Sink.
func (s *Store) Send(ctx context.Context, t warden.Transition) error {
	fatal := 0
	if t.Fatal {
		fatal = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transitions (id, watch, from_state, to_state, reason, fatal, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Watch, string(t.From), string(t.To), t.Reason, fatal, t.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	if s.keep > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM transitions WHERE watch = ? AND id NOT IN
			 (SELECT id FROM transitions WHERE watch = ? ORDER BY at DESC LIMIT ?)`,
			t.Watch, t.Watch, s.keep)
		if err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
	}
	return nil
}

// Recent returns up to n of the newest transitions of the watch, oldest
// first.  An n of zero or less returns them all.
func (s *Store) Recent(ctx context.Context, watch string, n int) ([]warden.Transition, error) {
	if n <= 0 {
		n = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch, from_state, to_state, reason, fatal, at FROM transitions
		 WHERE watch = ? ORDER BY at DESC LIMIT ?`, watch, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rv []warden.Transition
	for rows.Next() {
		var t warden.Transition
		var from, to string
		var fatal int
		var at int64
		if err := rows.Scan(&t.ID, &t.Watch, &from, &to, &t.Reason, &fatal, &at); err != nil {
			return nil, err
		}
		t.From = warden.State(from)
		t.To = warden.State(to)
		t.Fatal = fatal != 0
		t.Time = time.Unix(0, at)
		rv = append(rv, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(rv)-1; i < j; i, j = i+1, j-1 {
		rv[i], rv[j] = rv[j], rv[i]
	}
	return rv, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
