// Package meta implements spec.md §3/§4.2's persisted data model: the
// per-file Meta record, staged Operations, immutable Commits, and the
// Database that owns all three plus the sync-status flag.
package meta

import (
	"encoding/json"
	"fmt"
)

// Checksum is either a hex digest (a "normal" file) or one of the
// sentinel markers below.
type Checksum string

const (
	// ChecksumNone marks a tracked-but-unhashed file (transient during commit).
	ChecksumNone Checksum = ""
	// ChecksumRemoved marks a file deleted by a past commit.
	ChecksumRemoved Checksum = "#FILE_REMOVED"
	// ChecksumReverted marks a file to be restored to its last committed state.
	ChecksumReverted Checksum = "#FILE_REVERT"
)

// Normal reports whether c is a real hex digest rather than a sentinel.
func (c Checksum) Normal() bool {
	if c == ChecksumNone {
		return false
	}
	return c[0] != '#'
}

// Meta is the per-file record keyed externally by filename.
type Meta struct {
	Filename    string
	Modtime     int64
	Checksum    Checksum
	LastCommits []string
}

// New returns a zero-value Meta for filename.
func New(filename string) Meta {
	return Meta{Filename: filename, Checksum: ChecksumNone}
}

// Copy returns a deep copy (LastCommits is not aliased).
func (m Meta) Copy() Meta {
	out := m
	out.LastCommits = append([]string(nil), m.LastCommits...)
	return out
}

// AddCommit appends uid to the file's commit history.
func (m *Meta) AddCommit(uid string) {
	m.LastCommits = append(m.LastCommits, uid)
}

// CheckFSEqual reports whether checksum and modtime agree between m and
// other. Mirrors the reference's Meta.check_fs_equal.
func (m Meta) CheckFSEqual(other Meta) bool {
	return m.Checksum == other.Checksum && m.Modtime == other.Modtime
}

// metaJSON is the on-disk array form: [modtime, checksum, last_commits].
// Field order is part of spec.md's wire/on-disk compatibility contract.
type metaJSON struct {
	Modtime     int64
	Checksum    Checksum
	LastCommits []string
}

// MarshalJSON emits the fixed 3-element array form.
func (m Meta) MarshalJSON() ([]byte, error) {
	commits := m.LastCommits
	if commits == nil {
		commits = []string{}
	}
	return json.Marshal([3]any{m.Modtime, m.Checksum, commits})
}

// UnmarshalJSON parses the fixed 3-element array form. Filename is not
// part of the array; callers must set it from the enclosing map key.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("meta: unmarshal: %w", err)
	}
	if err := json.Unmarshal(raw[0], &m.Modtime); err != nil {
		return fmt.Errorf("meta: unmarshal modtime: %w", err)
	}
	if err := json.Unmarshal(raw[1], &m.Checksum); err != nil {
		return fmt.Errorf("meta: unmarshal checksum: %w", err)
	}
	var commits []string
	if err := json.Unmarshal(raw[2], &commits); err != nil {
		return fmt.Errorf("meta: unmarshal last_commits: %w", err)
	}
	m.LastCommits = commits
	return nil
}

// OpKind is the kind of a staged Operation.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpDel    OpKind = "del"
	OpModify OpKind = "mod"
	OpRevert OpKind = "rev"
)

// Operation is a staged intent keyed externally by filename.
type Operation struct {
	Filename string
	Op       OpKind
	Extra    string
}

// MarshalJSON emits the fixed 2-element array form: [operation, extra].
func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{o.Op, o.Extra})
}

// UnmarshalJSON parses the fixed 2-element array form.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("operation: unmarshal: %w", err)
	}
	if err := json.Unmarshal(raw[0], &o.Op); err != nil {
		return fmt.Errorf("operation: unmarshal op: %w", err)
	}
	if err := json.Unmarshal(raw[1], &o.Extra); err != nil {
		return fmt.Errorf("operation: unmarshal extra: %w", err)
	}
	return nil
}

// Affected is one entry in a Commit's affected-files list.
type Affected struct {
	Filename string
	Op       OpKind
	Extra    string
}

// MarshalJSON emits the fixed 3-element array form: [filename, op, extra].
func (a Affected) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{a.Filename, a.Op, a.Extra})
}

// UnmarshalJSON parses the fixed 3-element array form.
func (a *Affected) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("affected: unmarshal: %w", err)
	}
	if err := json.Unmarshal(raw[0], &a.Filename); err != nil {
		return fmt.Errorf("affected: unmarshal filename: %w", err)
	}
	if err := json.Unmarshal(raw[1], &a.Op); err != nil {
		return fmt.Errorf("affected: unmarshal op: %w", err)
	}
	if err := json.Unmarshal(raw[2], &a.Extra); err != nil {
		return fmt.Errorf("affected: unmarshal extra: %w", err)
	}
	return nil
}

// Commit is an immutable, append-only record of a batch of operations.
type Commit struct {
	UID       string
	Timestamp float64
	Message   string
	Affected  []Affected
}

// OperationCount returns the number of affected entries.
func (c Commit) OperationCount() int {
	return len(c.Affected)
}

// MarshalJSON emits the on-disk array form: [uid, timestamp, message, affected].
func (c Commit) MarshalJSON() ([]byte, error) {
	affected := c.Affected
	if affected == nil {
		affected = []Affected{}
	}
	return json.Marshal([4]any{c.UID, c.Timestamp, c.Message, affected})
}

// UnmarshalJSON parses the fixed 4-element array form.
func (c *Commit) UnmarshalJSON(data []byte) error {
	var raw [4]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("commit: unmarshal: %w", err)
	}
	if err := json.Unmarshal(raw[0], &c.UID); err != nil {
		return fmt.Errorf("commit: unmarshal uid: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Timestamp); err != nil {
		return fmt.Errorf("commit: unmarshal timestamp: %w", err)
	}
	if err := json.Unmarshal(raw[2], &c.Message); err != nil {
		return fmt.Errorf("commit: unmarshal message: %w", err)
	}
	var affected []Affected
	if err := json.Unmarshal(raw[3], &affected); err != nil {
		return fmt.Errorf("commit: unmarshal affected: %w", err)
	}
	c.Affected = affected
	return nil
}
