// Package seafobj decodes and encodes the content-addressed commit, directory
// and file objects that make up a library's version history. Both the v0
// (legacy, binary, network byte order) and v1 (zlib-compressed JSON) wire
// encodings are supported, matching the two formats a real Seafile store can
// contain side by side. Grounded on the authoritative Python reference in
// original_source/wsgidav/addons/seafile/seafObj.py.
package seafobj

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sesame-Disk/seafdav/internal/blob"
)

// ZeroObjID is the sentinel id for an empty object (40 '0' hex chars). Both
// SeafDir and SeafFile treat it as "empty" without touching the backend.
const ZeroObjID = "0000000000000000000000000000000000000000"

// metadata type tags used by the v0 binary dir format.
const (
	metaTypeFile = 1
	metaTypeLink = 2
	metaTypeDir  = 3
)

// Unix file-mode bits (as written by the real seaf-server), used to tell
// regular files from directories in the v0 binary dirent stream.
const (
	modeIFDIR = 0040000
	modeIFREG = 0100000
	modeMask  = 0170000
)

// CorruptObjectError reports that an object's bytes don't parse as the
// expected type.
type CorruptObjectError struct {
	ObjType string
	ObjID   string
}

func (e *CorruptObjectError) Error() string {
	return fmt.Sprintf("%s object %s format error", e.ObjType, e.ObjID)
}

// Dirent is one entry in a directory listing: a file or a sub-directory.
type Dirent struct {
	Name  string
	IsDir bool
	ID    string
	MTime int64 // -1 when the v0 encoding carries no mtime
	Size  int64 // 0 for directories, -1 when the v0 encoding carries no size
}

// Commit is the JSON commit object; only root_id is consumed by this
// gateway, the rest of the envelope (description, creator, ctime, ...) is
// out of scope per spec.
type Commit struct {
	CommitID     string `json:"commit_id"`
	RootID       string `json:"root_id"`
	RepoID       string `json:"repo_id,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	CreatorName  string `json:"creator_name,omitempty"`
	Description  string `json:"description,omitempty"`
	CTime        int64  `json:"ctime,omitempty"`
	Version      int    `json:"version,omitempty"`
}

// Dir is a decoded SeafDir object: an ordered-by-name set of dirents.
type Dir struct {
	ObjID   string
	Dirents []Dirent
}

// Lookup returns the dirent named name, or nil if absent.
func (d *Dir) Lookup(name string) *Dirent {
	for i := range d.Dirents {
		if d.Dirents[i].Name == name {
			return &d.Dirents[i]
		}
	}
	return nil
}

// File is a decoded SeafFile object: file size plus its ordered block list.
type File struct {
	ObjID    string
	Size     int64
	BlockIDs []string
}

// Store reads and writes fs-kind objects (commits, dirs, files) through a
// blob.Backend, applying the v0/v1 wire encoding.
type Store struct {
	backend blob.Backend
	version int // recorded only: reads take the version per call, writes always use v1
}

// NewStore wraps backend for a repository at the given object version.
func NewStore(backend blob.Backend, version int) *Store {
	return &Store{backend: backend, version: version}
}

// ReadCommit loads and parses a commit object by id. The zero id is invalid
// for a commit (every repo has at least one real commit) and is rejected by
// the caller before reaching here.
func (s *Store) ReadCommit(storeID, commitID string) (*Commit, error) {
	raw, err := s.backend.Get(blob.KindCommits, storeID, commitID)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", commitID, err)
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", commitID, err)
	}

	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &CorruptObjectError{ObjType: "commit", ObjID: commitID}
	}
	c.CommitID = commitID
	return &c, nil
}

// ReadDir loads and parses a directory object. The zero id is the sentinel
// for an empty directory and never touches the backend.
func (s *Store) ReadDir(storeID string, version int, dirID string) (*Dir, error) {
	if dirID == ZeroObjID {
		return &Dir{ObjID: dirID}, nil
	}

	raw, err := s.backend.Get(blob.KindFS, storeID, dirID)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dirID, err)
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dirID, err)
	}

	var dirents []Dirent
	if version == 0 {
		dirents, err = parseDirentsV0(data)
	} else {
		dirents, err = parseDirentsV1(data)
	}
	if err != nil {
		return nil, &CorruptObjectError{ObjType: "dir", ObjID: dirID}
	}

	return &Dir{ObjID: dirID, Dirents: dirents}, nil
}

// ReadFile loads and parses a file object. The zero id is the sentinel for
// an empty (zero-length, zero-block) file.
func (s *Store) ReadFile(storeID string, version int, fileID string) (*File, error) {
	if fileID == ZeroObjID {
		return &File{ObjID: fileID}, nil
	}

	raw, err := s.backend.Get(blob.KindFS, storeID, fileID)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}

	var f *File
	if version == 0 {
		f, err = parseBlocksV0(data)
	} else {
		f, err = parseBlocksV1(data)
	}
	if err != nil {
		return nil, &CorruptObjectError{ObjType: "file", ObjID: fileID}
	}
	f.ObjID = fileID
	return f, nil
}

// parseDirentsV0 decodes the legacy binary dir format:
//
//	int32 mode (must be metaTypeDir)
//	repeated: int32 mode, [40]byte hex-id, int32 name_len, name_len bytes name
//
// The loop stops once fewer than a full header-plus-minimum-name would fit,
// matching the real server's `off > len(buf) - 48` termination exactly.
func parseDirentsV0(buf []byte) ([]Dirent, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("dir buffer too short")
	}
	mode := int32(binary.BigEndian.Uint32(buf[0:4]))
	if mode != metaTypeDir {
		return nil, fmt.Errorf("unexpected dir mode %d", mode)
	}

	var dirents []Dirent
	off := 4
	for off+48 <= len(buf) {
		entryMode := int32(binary.BigEndian.Uint32(buf[off : off+4]))
		id := string(buf[off+4 : off+44])
		nameLen := int(binary.BigEndian.Uint32(buf[off+44 : off+48]))
		off += 48

		if off+nameLen > len(buf) {
			return nil, fmt.Errorf("dir entry name overruns buffer")
		}
		name := string(buf[off : off+nameLen])
		off += nameLen

		switch entryMode & modeMask {
		case modeIFREG:
			dirents = append(dirents, Dirent{Name: name, IsDir: false, ID: id, MTime: -1, Size: -1})
		case modeIFDIR:
			dirents = append(dirents, Dirent{Name: name, IsDir: true, ID: id, MTime: -1, Size: -1})
		}

		if off > len(buf)-48 {
			break
		}
	}
	return dirents, nil
}

type dirEntryV1 struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	MTime int64  `json:"mtime"`
	Mode  uint32 `json:"mode"`
	Size  int64  `json:"size,omitempty"`
}

type dirV1 struct {
	Dirents []dirEntryV1 `json:"dirents"`
}

// parseDirentsV1 decodes the compressed JSON dir format.
func parseDirentsV1(buf []byte) ([]Dirent, error) {
	content, err := zlibDecompress(buf)
	if err != nil {
		return nil, err
	}

	var d dirV1
	if err := json.Unmarshal(content, &d); err != nil {
		return nil, err
	}

	dirents := make([]Dirent, 0, len(d.Dirents))
	for _, e := range d.Dirents {
		switch e.Mode & modeMask {
		case modeIFREG:
			dirents = append(dirents, Dirent{Name: e.Name, IsDir: false, ID: e.ID, MTime: e.MTime, Size: e.Size})
		case modeIFDIR:
			dirents = append(dirents, Dirent{Name: e.Name, IsDir: true, ID: e.ID, MTime: e.MTime, Size: 0})
		}
	}
	return dirents, nil
}

// parseBlocksV0 decodes the legacy binary file format:
//
//	int32 mode (must be metaTypeFile), int64 filesize
//	repeated: [20]byte raw block hash
//
// Loop termination mirrors the real server's `off > len(buf) - 20` check.
func parseBlocksV0(buf []byte) (*File, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("file buffer too short")
	}
	mode := int32(binary.BigEndian.Uint32(buf[0:4]))
	if mode != metaTypeFile {
		return nil, fmt.Errorf("unexpected file mode %d", mode)
	}
	size := int64(binary.BigEndian.Uint64(buf[4:12]))

	var blockIDs []string
	off := 12
	for off+20 <= len(buf) {
		raw := buf[off : off+20]
		blockIDs = append(blockIDs, fmt.Sprintf("%x", raw))
		off += 20

		if off > len(buf)-20 {
			break
		}
	}
	return &File{Size: size, BlockIDs: blockIDs}, nil
}

type fileV1 struct {
	BlockIDs []string `json:"block_ids"`
	Size     int64    `json:"size"`
}

// parseBlocksV1 decodes the compressed JSON file format.
func parseBlocksV1(buf []byte) (*File, error) {
	content, err := zlibDecompress(buf)
	if err != nil {
		return nil, err
	}
	var f fileV1
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, err
	}
	return &File{Size: f.Size, BlockIDs: f.BlockIDs}, nil
}

func zlibDecompress(buf []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
