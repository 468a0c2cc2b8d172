package remote

import (
	"fmt"

	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/syncplan"
)

// executeSync is the shared two-way sync driver used by both LocalFS
// and DuplexRemote's ExecuteSync methods. self is the side initiating
// the sync (and the side whose database is authoritative for
// DatabaseGet()'s returned pointer going forward); peer is the other
// side. Mirrors remote.py:remote_sync end to end: build a plan, apply
// every action in it, union commit histories, then persist both sides.
func executeSync(self, peer Remote, resolver syncplan.ConflictResolver) error {
	localDB := self.DatabaseGet()
	remoteDB := peer.DatabaseGet()

	table, err := syncplan.Build(localDB, remoteDB, resolver)
	if err != nil {
		return fmt.Errorf("remote: build sync plan: %w", err)
	}

	for _, m := range table.Copy {
		if err := transfer(self, peer, m); err != nil {
			return fmt.Errorf("remote: push %s: %w", m.Filename, err)
		}
		remoteDB.MetaSet(m)
	}
	for _, m := range table.CopyLocal {
		if err := transfer(peer, self, m); err != nil {
			return fmt.Errorf("remote: pull %s: %w", m.Filename, err)
		}
		localDB.MetaSet(m)
	}
	for _, m := range table.DeleteRemote {
		if err := peer.FileDel(m); err != nil {
			return fmt.Errorf("remote: delete %s on remote: %w", m.Filename, err)
		}
		tomb := m.Copy()
		tomb.Checksum = meta.ChecksumRemoved
		remoteDB.MetaSet(tomb)
	}
	for _, m := range table.DeleteLocal {
		if err := self.FileDel(m); err != nil {
			return fmt.Errorf("remote: delete %s locally: %w", m.Filename, err)
		}
		tomb := m.Copy()
		tomb.Checksum = meta.ChecksumRemoved
		localDB.MetaSet(tomb)
	}
	for _, entry := range table.Merged {
		if err := applyMerge(self, peer, localDB, remoteDB, entry); err != nil {
			return fmt.Errorf("remote: merge %s: %w", entry.Filename, err)
		}
	}
	for _, mv := range table.Move {
		if err := applyMove(self, peer, localDB, remoteDB, mv); err != nil {
			return fmt.Errorf("remote: move %s -> %s: %w", mv.From.Filename, mv.To.Filename, err)
		}
	}

	syncplan.AppendCommits(localDB, remoteDB)
	syncplan.AppendCommits(remoteDB, localDB)

	if err := self.DatabaseSave(); err != nil {
		return fmt.Errorf("remote: save local database: %w", err)
	}
	if err := peer.DatabaseSave(); err != nil {
		return fmt.Errorf("remote: save remote database: %w", err)
	}
	return nil
}

// transfer streams source's content for m off src and writes it to dst
// under m's metadata.
func transfer(src, dst Remote, m meta.Meta) error {
	r, err := src.FileGet(m)
	if err != nil {
		return err
	}
	defer r.Close()
	return dst.FileSet(m, r)
}

func applyMerge(self, peer Remote, localDB, remoteDB *meta.Database, entry syncplan.MergedEntry) error {
	if !entry.Resolved.Checksum.Normal() {
		// A deletion/revert marker propagating to a peer that never
		// tracked this file at all: there is no file on either side to
		// move, just the marker to record.
		localDB.MetaSet(entry.Resolved)
		remoteDB.MetaSet(entry.Resolved)
		return nil
	}
	switch entry.Direction {
	case syncplan.DirectionPull:
		if err := transfer(peer, self, entry.Resolved); err != nil {
			return err
		}
	default:
		if err := transfer(self, peer, entry.Resolved); err != nil {
			return err
		}
	}
	localDB.MetaSet(entry.Resolved)
	remoteDB.MetaSet(entry.Resolved)
	return nil
}

func applyMove(self, peer Remote, localDB, remoteDB *meta.Database, mv syncplan.MovePair) error {
	switch mv.Direction {
	case syncplan.DirectionPull:
		if err := self.FileMove(mv.From, mv.To); err != nil {
			return err
		}
		localDB.MetaSet(mv.To)
	default:
		if err := peer.FileMove(mv.From, mv.To); err != nil {
			return err
		}
		remoteDB.MetaSet(mv.To)
	}
	return nil
}
