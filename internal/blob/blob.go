// Package blob provides the pluggable object-storage abstraction backing
// repository commits, directories, files and blocks. Grounded on the
// teacher's internal/storage.Store interface, trimmed of the Glacier/cold
// tier machinery (archival is out of this gateway's scope) and reshaped
// around the Seafile object-kind/store_id/obj_id addressing scheme from
// original_source/wsgidav/addons/seafile/backends.py.
package blob

import (
	"fmt"
	"io"
)

// Kind identifies which object namespace a read/write targets. Real Seafile
// deployments keep commits, fs objects (dirs + files) and blocks in separate
// trees so each can be configured with its own backend.
type Kind string

const (
	KindCommits Kind = "commits"
	KindFS      Kind = "fs"
	KindBlocks  Kind = "blocks"
)

// NotFoundError reports a missing object. Backends return this (or a value
// satisfying errors.Is against it via wrapping) so callers can distinguish
// "no such object" from a transport failure.
type NotFoundError struct {
	Kind    Kind
	StoreID string
	ObjID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s object %s not found in store %s", e.Kind, e.ObjID, e.StoreID)
}

// Backend is the storage-agnostic collaborator every object/block read and
// write in this gateway goes through. store_id scopes objects to a physical
// library (a virtual/shared repo shares its parent's store_id), letting one
// backend instance multiplex many repositories.
type Backend interface {
	// Get opens obj_id for reading within the given kind/store_id. Returns a
	// *NotFoundError (wrapped) when the object doesn't exist.
	Get(kind Kind, storeID, objID string) (io.ReadCloser, error)

	// Put stores size bytes from r as obj_id. Implementations must make this
	// atomic from the reader's perspective: a concurrent Get either sees the
	// whole object or a NotFoundError, never a partial write.
	Put(kind Kind, storeID, objID string, r io.Reader, size int64) error

	// Exists reports whether obj_id is present without reading its content.
	Exists(kind Kind, storeID, objID string) (bool, error)
}

// idToPath splits a hex object id into the two-level sharded directory
// layout every Seafile object backend uses (obj_id[:2]/obj_id[2:]), matching
// backends.py's id_to_path.
func idToPath(objID string) (string, string, error) {
	if len(objID) < 3 {
		return "", "", fmt.Errorf("object id %q too short to shard", objID)
	}
	return objID[:2], objID[2:], nil
}
