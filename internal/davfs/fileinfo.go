package davfs

import (
	"os"
	"time"
)

// FileInfo is the os.FileInfo golang.org/x/net/webdav.FileSystem hands back
// from Stat and Readdir, built from a resolver.Resolved node or an
// access.Entry at the DAV root rather than a real filesystem stat.
type FileInfo struct {
	name  string
	size  int64
	mtime time.Time
	isDir bool
}

func (fi *FileInfo) Name() string { return fi.name }
func (fi *FileInfo) Size() int64  { return fi.size }

func (fi *FileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (fi *FileInfo) ModTime() time.Time { return fi.mtime }
func (fi *FileInfo) IsDir() bool        { return fi.isDir }
func (fi *FileInfo) Sys() interface{}   { return nil }
