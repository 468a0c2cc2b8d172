package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Status is the database's crash-safety flag (spec.md §4.6).
type Status string

const (
	StatusOK   Status = "ok"
	StatusSync Status = "sync"
)

// FileName is the persisted database filename under the metadata directory.
const FileName = "database.json"

// Sentinel errors, replacing the reference's SA_DB_Exception hierarchy.
var (
	ErrNotFound        = errors.New("meta: not found")
	ErrStagingConflict = errors.New("meta: staging already has an entry for this file")
)

// Database holds the full persisted state of a repository: tracked file
// metadata, pending staged operations, and the append-only commit
// history. Grounded on the reference's database_json.py's in-memory
// dict-of-dicts, re-expressed as typed maps.
type Database struct {
	VersionMajor int
	VersionMinor int
	Name         string
	Status       Status
	Stor         map[string]Meta
	Stag         map[string]Operation
	Commit       map[string]Commit

	// findIndex is the lazily built, invalidated-on-write reverse
	// checksum -> filename index backing MetaFind.
	findIndex map[Checksum]string
}

// New returns a freshly initialized Database, matching
// DatabaseJson.DEFAULT_DATABASE plus the given repository name.
func New(name string) *Database {
	return &Database{
		VersionMajor: 0,
		VersionMinor: 1,
		Name:         name,
		Status:       StatusOK,
		Stor:         map[string]Meta{},
		Stag:         map[string]Operation{},
		Commit:       map[string]Commit{},
	}
}

// --- persistence ---

// storJSON / dbJSON separate the wire JSON shape (maps of arrays) from
// the Go-native Database shape without exposing Stor/Stag/Commit's
// custom array marshaling at the top level twice.
type dbJSON struct {
	VersionMajor int               `json:"version_major"`
	VersionMinor int               `json:"version_minor"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	Stor         map[string]Meta   `json:"stor"`
	Stag         map[string]Operation `json:"stag"`
	Commit       map[string]Commit `json:"commit"`
}

// Decode parses a Database from its persisted JSON form, filling each
// Meta/Operation/Commit's Filename/UID from its enclosing map key.
func Decode(r io.Reader) (*Database, error) {
	var raw dbJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("meta: decode database: %w", err)
	}

	db := &Database{
		VersionMajor: raw.VersionMajor,
		VersionMinor: raw.VersionMinor,
		Name:         raw.Name,
		Status:       raw.Status,
		Stor:         raw.Stor,
		Stag:         raw.Stag,
		Commit:       raw.Commit,
	}
	if db.Stor == nil {
		db.Stor = map[string]Meta{}
	}
	if db.Stag == nil {
		db.Stag = map[string]Operation{}
	}
	if db.Commit == nil {
		db.Commit = map[string]Commit{}
	}

	for filename, m := range db.Stor {
		m.Filename = filename
		db.Stor[filename] = m
	}
	for filename, op := range db.Stag {
		op.Filename = filename
		db.Stag[filename] = op
	}
	return db, nil
}

// Encode writes the Database in its persisted JSON form.
func (db *Database) Encode(w io.Writer) error {
	raw := dbJSON{
		VersionMajor: db.VersionMajor,
		VersionMinor: db.VersionMinor,
		Name:         db.Name,
		Status:       db.Status,
		Stor:         db.Stor,
		Stag:         db.Stag,
		Commit:       db.Commit,
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("meta: encode database: %w", err)
	}
	return nil
}

// GetTableSizes returns (n commits, n tracked files, n staged ops),
// mirroring DatabaseBase.get_table_sizes.
func (db *Database) GetTableSizes() (commits, stor, stag int) {
	return len(db.Commit), len(db.Stor), len(db.Stag)
}

// --- meta (stor) ---

// MetaGet returns the tracked record for filename.
func (db *Database) MetaGet(filename string) (Meta, error) {
	m, ok := db.Stor[filename]
	if !ok {
		return Meta{}, fmt.Errorf("%w: file %s", ErrNotFound, filename)
	}
	return m, nil
}

// MetaSet stores m, keyed by m.Filename, and invalidates the reverse
// checksum index.
func (db *Database) MetaSet(m Meta) {
	db.Stor[m.Filename] = m
	db.findIndex = nil
}

// MetaFind returns the tracked file whose checksum equals the given
// normal (non-sentinel) checksum, building and caching a reverse index
// on first use. Mirrors database_json.py:meta_find: sentinel checksums
// (#FILE_REMOVED, #FILE_REVERT) are never indexed.
func (db *Database) MetaFind(checksum Checksum) (Meta, error) {
	if db.findIndex == nil {
		idx := make(map[Checksum]string, len(db.Stor))
		for filename, m := range db.Stor {
			if m.Checksum != ChecksumRemoved && m.Checksum != ChecksumReverted && m.Checksum != ChecksumNone {
				idx[m.Checksum] = filename
			}
		}
		db.findIndex = idx
	}

	filename, ok := db.findIndex[checksum]
	if !ok {
		return Meta{}, fmt.Errorf("%w: checksum %s", ErrNotFound, checksum)
	}
	return db.MetaGet(filename)
}

func prepareSearchKey(keyStartsWith string) string {
	if strings.HasPrefix(keyStartsWith, ".") {
		keyStartsWith = keyStartsWith[1:]
	}
	return keyStartsWith
}

// MetaList returns every tracked record whose filename starts with
// keyStartsWith (empty matches everything), sorted by filename.
func (db *Database) MetaList(keyStartsWith string) []Meta {
	prefix := prepareSearchKey(keyStartsWith)

	keys := make([]string, 0, len(db.Stor))
	for k := range db.Stor {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Meta, 0, len(keys))
	for _, k := range keys {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, db.Stor[k])
	}
	return out
}

// MetaListKeys returns every tracked filename, sorted.
func (db *Database) MetaListKeys() []string {
	keys := make([]string, 0, len(db.Stor))
	for k := range db.Stor {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecursiveWalkFiles returns every tracked Meta matching filenameRaw,
// either an exact filename or a directory prefix. Mirrors
// database.py:DatabaseBase.recursive_walk_files exactly, including its
// documented tombstone fallthrough: an exact match on a
// #FILE_REMOVED-checksummed file is yielded when onlyExisting is false,
// but when onlyExisting is true the exact match is treated as "not
// found" and falls through to the prefix scan (this mirrors the
// reference raising-and-immediately-catching its own not-found
// exception on that branch).
func (db *Database) RecursiveWalkFiles(filenameRaw string, onlyExisting bool) ([]Meta, error) {
	if m, err := db.MetaGet(filenameRaw); err == nil {
		if !onlyExisting || m.Checksum != ChecksumRemoved {
			return []Meta{m}, nil
		}
		// exact tombstoned match with onlyExisting=true: fall through.
	}

	prefix := filenameRaw
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []Meta
	for _, m := range db.MetaList(prefix) {
		if !onlyExisting || m.Checksum != ChecksumRemoved {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no matching files: %s", ErrNotFound, filenameRaw)
	}
	return out, nil
}

// --- staging (stag) ---

// StagingAdd records operation, failing if filename already has a
// staged entry (mirrors database_json.py:staging_add's overwrite guard).
func (db *Database) StagingAdd(op Operation) error {
	if _, exists := db.Stag[op.Filename]; exists {
		return fmt.Errorf("%w: %s", ErrStagingConflict, op.Filename)
	}
	db.Stag[op.Filename] = op
	return nil
}

// StagingSet records operation unconditionally, overwriting any
// existing staged entry for the same filename.
func (db *Database) StagingSet(op Operation) {
	db.Stag[op.Filename] = op
}

// StagingGet returns the staged operation for filename, if any.
func (db *Database) StagingGet(filename string) (Operation, error) {
	op, ok := db.Stag[filename]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return op, nil
}

// StagingList returns every staged operation, sorted by filename.
func (db *Database) StagingList() []Operation {
	keys := make([]string, 0, len(db.Stag))
	for k := range db.Stag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Operation, 0, len(keys))
	for _, k := range keys {
		out = append(out, db.Stag[k])
	}
	return out
}

// StagingClear removes every staged operation.
func (db *Database) StagingClear() {
	db.Stag = map[string]Operation{}
}

// --- commits ---

// CommitAdd records a new, immutable commit.
func (db *Database) CommitAdd(c Commit) {
	db.Commit[c.UID] = c
}

// CommitGet returns the commit with the given UID.
func (db *Database) CommitGet(uid string) (Commit, error) {
	c, ok := db.Commit[uid]
	if !ok {
		return Commit{}, fmt.Errorf("%w: commit %s", ErrNotFound, uid)
	}
	return c, nil
}

// CommitListKeys returns every commit UID, unsorted (matching the
// reference's dict key iteration; callers needing a stable order use
// CommitList with sortBy set).
func (db *Database) CommitListKeys() []string {
	keys := make([]string, 0, len(db.Commit))
	for k := range db.Commit {
		keys = append(keys, k)
	}
	return keys
}

// SortBy names the field CommitList sorts on.
type SortBy string

const (
	SortByNone      SortBy = ""
	SortByTimestamp SortBy = "timestamp"
	SortByUID       SortBy = "uid"
)

// CommitList returns commits, optionally restricted to keys, optionally
// sorted by sortBy, optionally limited to the first limit results (0 =
// unlimited). Mirrors database_json.py:commit_list.
func (db *Database) CommitList(sortBy SortBy, limit int, keys map[string]struct{}) []Commit {
	var source []Commit
	if keys != nil {
		for k := range keys {
			if c, ok := db.Commit[k]; ok {
				source = append(source, c)
			}
		}
	} else {
		for _, c := range db.Commit {
			source = append(source, c)
		}
	}

	switch sortBy {
	case SortByTimestamp:
		sort.Slice(source, func(i, j int) bool { return source[i].Timestamp < source[j].Timestamp })
	case SortByUID:
		sort.Slice(source, func(i, j int) bool { return source[i].UID < source[j].UID })
	}

	if limit > 0 && limit < len(source) {
		source = source[:limit]
	}
	return source
}
