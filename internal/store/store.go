// Copyright 2025 The March Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the relational object store façade: put/get by CID
// with a kind tag, the name index, and bulk listing for warmup (§4.2,
// §6). The backing engine is SQLite, configured for single-writer,
// many-reader throughput.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
)

// Store is the SQLite-backed object store. A Store is safe for
// concurrent reads; the core itself never mutates concurrently, but
// callers coordinating writes externally can rely on the underlying
// connection-level mutex.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS object (
  cid  BLOB PRIMARY KEY,
  kind TEXT NOT NULL,
  cbor BLOB NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_object_kind ON object(kind);

CREATE TABLE IF NOT EXISTS name_index (
  scope TEXT NOT NULL,
  name  TEXT NOT NULL,
  cid   BLOB NOT NULL,
  PRIMARY KEY (scope, name)
);

CREATE TABLE IF NOT EXISTS code_cache (
  subgraph_cid BLOB NOT NULL,
  arch         TEXT NOT NULL,
  abi          TEXT NOT NULL,
  flags        TEXT NOT NULL,
  blob         BLOB NOT NULL,
  PRIMARY KEY (subgraph_cid, arch, abi, flags)
);
`

// resolvePath implements the database file naming rule (§6): a bare
// name or path whose last element has no extension becomes
// "<name>.march5.db"; anything that already carries an extension is
// used as-is.
func resolvePath(name string) string {
	if filepath.Ext(name) == "" {
		return name + ".march5.db"
	}
	return name
}

// Open opens (creating if necessary) the SQLite database backing name,
// applies the durability/throughput pragmas from §5, and ensures the
// three-table schema exists.
func Open(name string) (*Store, error) {
	path := resolvePath(name)
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=30000",
		path,
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.StoreIOError, "store.Open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StoreIOError, "store.Open", err)
	}
	for _, pragma := range []string{
		"PRAGMA mmap_size = 268435456",
		"PRAGMA cache_size = -262144",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errs.Wrap(errs.StoreIOError, "store.Open", err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StoreIOError, "store.Open", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return errs.New(errs.StoreIOError, op, "store is closed")
	}
	return nil
}

// Put idempotently inserts an encoded object under its kind. It
// returns true if a new row was created, false if the CID was already
// present (a successful put is always committed before returning —
// the durability contract in §4.2).
func (s *Store) Put(cid codec.CID, kind objects.Kind, cbor []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("store.Put"); err != nil {
		return false, err
	}
	res, err := s.db.Exec(
		`INSERT INTO object (cid, kind, cbor) VALUES (?, ?, ?) ON CONFLICT(cid) DO NOTHING`,
		cid[:], string(kind), cbor,
	)
	if err != nil {
		return false, errs.Wrap(errs.StoreIOError, "store.Put", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Wrap(errs.StoreIOError, "store.Put", err)
	}
	return n > 0, nil
}

// Load fetches an object's kind and bytes by CID. It fails with
// NotFound if the CID is absent.
func (s *Store) Load(cid codec.CID) (objects.Kind, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("store.Load"); err != nil {
		return "", nil, err
	}
	var kind string
	var cbor []byte
	err := s.db.QueryRow(`SELECT kind, cbor FROM object WHERE cid = ?`, cid[:]).Scan(&kind, &cbor)
	if err == sql.ErrNoRows {
		return "", nil, errs.New(errs.NotFound, "store.Load", cid.Hex())
	}
	if err != nil {
		return "", nil, errs.Wrap(errs.StoreIOError, "store.Load", err)
	}
	return objects.Kind(kind), cbor, nil
}

// LoadForKind loads an object and asserts its stored kind matches
// want, failing with KindMismatch otherwise.
func (s *Store) LoadForKind(cid codec.CID, want objects.Kind) ([]byte, error) {
	kind, cbor, err := s.Load(cid)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, errs.New(errs.KindMismatch, "store.LoadForKind",
			fmt.Sprintf("%s: expected %s, stored as %s", cid.Hex(), want, kind))
	}
	return cbor, nil
}

// PutName registers a scoped name pointing at cid, overwriting any
// prior registration for (scope, name).
func (s *Store) PutName(scope, name string, cid codec.CID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("store.PutName"); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO name_index (scope, name, cid) VALUES (?, ?, ?)
		 ON CONFLICT(scope, name) DO UPDATE SET cid = excluded.cid`,
		scope, name, cid[:],
	)
	if err != nil {
		return errs.Wrap(errs.StoreIOError, "store.PutName", err)
	}
	return nil
}

// GetName resolves a scoped name to its CID. ok is false if the name
// has no registration (§8 property 4: unregistered names return no
// CID, not an error).
func (s *Store) GetName(scope, name string) (cid codec.CID, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = s.checkOpen("store.GetName"); err != nil {
		return codec.CID{}, false, err
	}
	var raw []byte
	qerr := s.db.QueryRow(`SELECT cid FROM name_index WHERE scope = ? AND name = ?`, scope, name).Scan(&raw)
	if qerr == sql.ErrNoRows {
		return codec.CID{}, false, nil
	}
	if qerr != nil {
		return codec.CID{}, false, errs.Wrap(errs.StoreIOError, "store.GetName", qerr)
	}
	if len(raw) != 32 {
		return codec.CID{}, false, errs.New(errs.DecodeError, "store.GetName", "malformed cid column")
	}
	copy(cid[:], raw)
	return cid, true, nil
}

// GetNameByCID is the reverse of GetName: it finds the first name
// registered for cid within scope, used by the interpreter to dispatch
// primitives by their registered name (§4.5).
func (s *Store) GetNameByCID(scope string, cid codec.CID) (name string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = s.checkOpen("store.GetNameByCID"); err != nil {
		return "", false, err
	}
	qerr := s.db.QueryRow(
		`SELECT name FROM name_index WHERE scope = ? AND cid = ? ORDER BY name LIMIT 1`,
		scope, cid[:],
	).Scan(&name)
	if qerr == sql.ErrNoRows {
		return "", false, nil
	}
	if qerr != nil {
		return "", false, errs.Wrap(errs.StoreIOError, "store.GetNameByCID", qerr)
	}
	return name, true, nil
}

// NamedEntry is one row of a ListNames result.
type NamedEntry struct {
	Name string
	CID  codec.CID
}

// ListNames returns every (name, cid) pair in scope whose name begins
// with prefix, ordered by name. An empty prefix matches everything in
// scope.
func (s *Store) ListNames(scope, prefix string) ([]NamedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("store.ListNames"); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT name, cid FROM name_index WHERE scope = ? AND name LIKE ? ESCAPE '\' ORDER BY name`,
		scope, likePrefix(prefix),
	)
	if err != nil {
		return nil, errs.Wrap(errs.StoreIOError, "store.ListNames", err)
	}
	defer rows.Close()

	var out []NamedEntry
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, errs.Wrap(errs.StoreIOError, "store.ListNames", err)
		}
		var cid codec.CID
		if len(raw) == 32 {
			copy(cid[:], raw)
		}
		out = append(out, NamedEntry{Name: name, CID: cid})
	}
	return out, rows.Err()
}

// likePrefix escapes SQL LIKE metacharacters in prefix and appends the
// wildcard suffix.
func likePrefix(prefix string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return esc + "%"
}

// CborEntry is one row of a ListCBORForKind result.
type CborEntry struct {
	CID  codec.CID
	Cbor []byte
}

// ListCBORForKind returns every stored object of kind, for bulk
// loading (e.g. rule table warmup at inet-reducer start).
func (s *Store) ListCBORForKind(kind objects.Kind) ([]CborEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("store.ListCBORForKind"); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT cid, cbor FROM object WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, errs.Wrap(errs.StoreIOError, "store.ListCBORForKind", err)
	}
	defer rows.Close()

	var out []CborEntry
	for rows.Next() {
		var raw, cbor []byte
		if err := rows.Scan(&raw, &cbor); err != nil {
			return nil, errs.Wrap(errs.StoreIOError, "store.ListCBORForKind", err)
		}
		var cid codec.CID
		if len(raw) == 32 {
			copy(cid[:], raw)
		}
		out = append(out, CborEntry{CID: cid, Cbor: cbor})
	}
	return out, rows.Err()
}

