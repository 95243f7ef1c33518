// Package node implements the node record store: a durable key/value
// map from NodeID to NodeRecord, with a secondary path index, and the
// tombstone/restore/purge lifecycle.
package node

import (
	"context"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// Type distinguishes a file node from a directory node.
type Type int

const (
	// TypeFile is a leaf filesystem node.
	TypeFile Type = iota
	// TypeDirectory is an interior filesystem node.
	TypeDirectory
)

// Record is one entry per filesystem node ever observed.
type Record struct {
	NodeID       ids.NodeID
	Path         string
	NodeType     Type
	Size         int64    // valid when NodeType == TypeFile
	ContentHash  ids.Hash // valid when NodeType == TypeFile
	Children     []ids.NodeID
	Parent       *ids.NodeID
	FrameSetRoot *ids.Hash
	Metadata     map[string]string
	TombstonedAt *int64 // seconds since epoch; nil when active
}

// IsTombstoned reports whether the record has been soft-deleted.
func (r *Record) IsTombstoned() bool {
	return r != nil && r.TombstonedAt != nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Children != nil {
		out.Children = append([]ids.NodeID(nil), r.Children...)
	}
	if r.Parent != nil {
		p := *r.Parent
		out.Parent = &p
	}
	if r.FrameSetRoot != nil {
		fsr := *r.FrameSetRoot
		out.FrameSetRoot = &fsr
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.TombstonedAt != nil {
		ts := *r.TombstonedAt
		out.TombstonedAt = &ts
	}
	return &out
}

// Store is the node record store interface.
type Store interface {
	Get(ctx context.Context, id ids.NodeID) (*Record, error)
	// GetByPath returns the record at path, including tombstoned ones.
	GetByPath(ctx context.Context, path string) (*Record, error)
	// FindByPath is GetByPath but hides tombstoned entries.
	FindByPath(ctx context.Context, path string) (*Record, error)
	Put(ctx context.Context, r *Record) error
	PutBatch(ctx context.Context, records []*Record) error
	ListAll(ctx context.Context) ([]*Record, error)
	ListActive(ctx context.Context) ([]*Record, error)
	Tombstone(ctx context.Context, id ids.NodeID, nowUnix int64) error
	Restore(ctx context.Context, id ids.NodeID) error
	// ListTombstoned returns tombstoned records, optionally filtered to
	// those tombstoned at or before olderThan (seconds since epoch). A
	// nil olderThan returns all tombstoned records.
	ListTombstoned(ctx context.Context, olderThan *int64) ([]*Record, error)
	// Purge succeeds only if the record is tombstoned and
	// tombstoned_at <= cutoff; removes both the primary entry and its
	// path index entry.
	Purge(ctx context.Context, id ids.NodeID, cutoff int64) error
	// Flush syncs any buffered writes to durable storage.
	Flush(ctx context.Context) error
}

// ErrNotFound is returned when no record exists for a given id/path.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "node: not found" }

// ErrNotTombstoned is returned by Purge when the record is still active.
var ErrNotTombstoned = notTombstonedError{}

type notTombstonedError struct{}

func (notTombstonedError) Error() string { return "node: record is not tombstoned" }

// ErrCutoffNotReached is returned by Purge when tombstoned_at > cutoff.
var ErrCutoffNotReached = cutoffError{}

type cutoffError struct{}

func (cutoffError) Error() string { return "node: tombstone cutoff not reached" }
