package davfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/Sesame-Disk/seafdav/internal/blob"
	"github.com/Sesame-Disk/seafdav/internal/repo"
)

type fileMode int

const (
	modeRead fileMode = iota
	modeWrite
	modeDir
)

// File implements webdav.File for the three shapes a resolved DAV path can
// take: a read-only stream over a file's blocks, a spooled write destined
// for repo.RepoService on Close, or a directory listing.
type File struct {
	fs   *FileSystem
	name string
	mode fileMode

	// modeRead
	storeID    string
	blockIDs   []string
	size       int64
	pos        int64
	curBlock   int
	curData    []byte
	curDataOff int64 // file offset curData[0] corresponds to

	// modeWrite. ctx is stashed here because io.Closer's Close takes none,
	// and repo.RepoService's write methods all need one.
	ctx       context.Context
	repoID    string
	reqPath   string
	principal repo.Principal
	isCreate  bool
	spill     *SpillBuffer

	// modeDir
	children []os.FileInfo
	dirPos   int

	selfInfo *FileInfo
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.selfInfo != nil {
		return f.selfInfo, nil
	}
	return &FileInfo{name: path.Base(f.name)}, nil
}

func (f *File) Close() error {
	switch f.mode {
	case modeWrite:
		return f.finalizeWrite()
	default:
		return nil
	}
}

func (f *File) Read(p []byte) (int, error) {
	if f.mode != modeRead {
		return 0, fmt.Errorf("seafdav: file not open for reading")
	}
	if f.pos >= f.size {
		return 0, io.EOF
	}

	if err := f.ensureBlockLoaded(); err != nil {
		return 0, err
	}

	offInBlock := f.pos - f.curDataOff
	n := copy(p, f.curData[offInBlock:])
	f.pos += int64(n)
	return n, nil
}

// ensureBlockLoaded fetches whichever block f.pos currently falls in,
// advancing curBlock/curData/curDataOff as needed. Blocks are only ever
// walked forward from the last one loaded; Seek handles rewinding by
// resetting curBlock to 0.
func (f *File) ensureBlockLoaded() error {
	for f.curData == nil || f.pos >= f.curDataOff+int64(len(f.curData)) {
		if f.curData != nil {
			f.curBlock++
		}
		if f.curBlock >= len(f.blockIDs) {
			return io.EOF
		}
		data, err := f.readBlock(f.curBlock)
		if err != nil {
			return err
		}
		if f.curData == nil {
			f.curDataOff = 0
		} else {
			f.curDataOff += int64(len(f.curData))
		}
		f.curData = data
	}
	return nil
}

func (f *File) readBlock(idx int) ([]byte, error) {
	rc, err := f.fs.blocks.Get(blob.KindBlocks, f.storeID, f.blockIDs[idx])
	if err != nil {
		return nil, fmt.Errorf("read block %s: %w", f.blockIDs[idx], err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Seek repositions the read cursor. Forward seeks replay Read internally
// (blocks are fetched lazily, not indexed by byte offset); a backward seek
// restarts the block walk from the beginning, since byte-range GET support
// is out of scope and this path only needs to serve http.ServeContent's
// sniff-then-rewind-to-0 access pattern cheaply.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.mode != modeRead {
		return 0, fmt.Errorf("seafdav: file not open for reading")
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = f.size + offset
	default:
		return 0, fmt.Errorf("seafdav: invalid whence %d", whence)
	}
	if target < 0 || target > f.size {
		return 0, fmt.Errorf("seafdav: seek target %d out of range [0,%d]", target, f.size)
	}

	if target < f.pos {
		f.pos = 0
		f.curBlock = 0
		f.curData = nil
		f.curDataOff = 0
	}

	for f.pos < target {
		chunk := target - f.pos
		if chunk > 32*1024 {
			chunk = 32 * 1024
		}
		buf := make([]byte, chunk)
		n, err := f.Read(buf)
		if n == 0 && err != nil {
			break
		}
	}
	return f.pos, nil
}

func (f *File) Write(p []byte) (int, error) {
	if f.mode != modeWrite {
		return 0, fmt.Errorf("seafdav: file not open for writing")
	}
	return f.spill.Write(p)
}

func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if f.mode != modeDir {
		return nil, fmt.Errorf("seafdav: not a directory")
	}

	sort.Slice(f.children, func(i, j int) bool { return f.children[i].Name() < f.children[j].Name() })

	remaining := f.children[f.dirPos:]
	if count <= 0 {
		f.dirPos = len(f.children)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if count > len(remaining) {
		count = len(remaining)
	}
	f.dirPos += count
	return remaining[:count], nil
}

// finalizeWrite hands the spooled content to repo.RepoService and unlinks
// the temp file on every exit path, successful or not.
func (f *File) finalizeWrite() error {
	tmpPath, owned, err := f.materializeTempFile()
	if err != nil {
		f.spill.Close()
		return err
	}
	defer f.spill.Close()
	if owned {
		defer os.Remove(tmpPath)
	}

	if f.isCreate {
		return f.fs.svc.PostFile(f.ctx, f.repoID, path.Dir(f.reqPath), path.Base(f.reqPath), tmpPath, f.principal.Email)
	}
	_, err = f.fs.svc.PutFile(f.ctx, f.repoID, f.reqPath, tmpPath, f.principal.Email)
	return err
}

// materializeTempFile returns a path repo.RepoService can os.Open, plus
// whether the caller is responsible for removing it. A buffer that already
// spilled to disk reuses its own temp file (removed via spill.Close
// instead); an in-memory buffer is written out to a fresh one the caller
// owns.
func (f *File) materializeTempFile() (string, bool, error) {
	if p, ok := f.spill.TempFilePath(); ok {
		return p, false, nil
	}

	data, err := f.spill.Bytes()
	if err != nil {
		return "", false, err
	}
	tf, err := os.CreateTemp("", "seafdav-upload-*")
	if err != nil {
		return "", false, err
	}
	if _, err := tf.Write(data); err != nil {
		tf.Close()
		os.Remove(tf.Name())
		return "", false, err
	}
	if err := tf.Close(); err != nil {
		os.Remove(tf.Name())
		return "", false, err
	}
	return tf.Name(), true, nil
}
