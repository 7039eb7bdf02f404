package davfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// SpillBuffer is a hybrid memory/disk buffer that starts in memory and
// spills to a temporary file once the threshold is exceeded, adapted from
// the teacher's internal/storage.SpillBuffer for the WebDAV write path: a
// PUT/POST request body is spooled here before repo.RepoService ever sees
// it, since CheckQuota and the FastCDC chunker both need a concrete byte
// count and a seekable source.
type SpillBuffer struct {
	threshold int64
	tempDir   string

	mu       sync.Mutex
	memory   *bytes.Buffer
	file     *os.File
	size     int64
	spilled  bool
	closed   bool
	filePath string
}

// NewSpillBuffer creates a SpillBuffer that spills to a file under
// os.TempDir() once more than threshold bytes have been written; a threshold
// <= 0 means 16 MiB.
func NewSpillBuffer(threshold int64) *SpillBuffer {
	if threshold <= 0 {
		threshold = 16 * 1024 * 1024
	}
	return &SpillBuffer{threshold: threshold, tempDir: os.TempDir(), memory: &bytes.Buffer{}}
}

func (b *SpillBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("spill buffer is closed")
	}

	if b.spilled {
		n, err := b.file.Write(p)
		b.size += int64(n)
		return n, err
	}

	if b.size+int64(len(p)) > b.threshold {
		if err := b.spillToDisk(); err != nil {
			return 0, fmt.Errorf("spill to disk: %w", err)
		}
		n, err := b.file.Write(p)
		b.size += int64(n)
		return n, err
	}

	n, err := b.memory.Write(p)
	b.size += int64(n)
	return n, err
}

func (b *SpillBuffer) spillToDisk() error {
	if b.spilled {
		return nil
	}
	f, err := os.CreateTemp(b.tempDir, "seafdav-upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if b.memory.Len() > 0 {
		if _, err := f.Write(b.memory.Bytes()); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("write spilled memory: %w", err)
		}
	}
	b.file = f
	b.filePath = f.Name()
	b.spilled = true
	b.memory = nil
	return nil
}

// Size returns the total number of bytes written so far.
func (b *SpillBuffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// TempFilePath returns the spilled file's path and true, or ("", false) if
// the buffer never grew past the in-memory threshold.
func (b *SpillBuffer) TempFilePath() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filePath, b.spilled
}

// Bytes returns the buffered content. For a spilled buffer this reads the
// whole temp file back into memory; callers on the write path prefer
// TempFilePath when available for exactly this reason.
func (b *SpillBuffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("spill buffer is closed")
	}
	if !b.spilled {
		return b.memory.Bytes(), nil
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(b.file)
}

// Close releases the buffer's resources, removing the spilled temp file if
// one was created. Safe to call more than once.
func (b *SpillBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.file != nil {
		b.file.Close()
		if b.filePath != "" {
			os.Remove(b.filePath)
		}
	}
	b.memory = nil
	return nil
}
