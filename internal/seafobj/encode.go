package seafobj

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Sesame-Disk/seafdav/internal/blob"
)

// New objects are always written in the v1 (compressed JSON) encoding,
// exactly as a real seaf-server only ever produces v1 on write; v0 is read
// support for objects created by older deployments.

// WriteDir serializes entries as a v1 dir object, stores it and returns its
// content id. The id is the SHA-1 of the canonical dirents encoding, so two
// directories with identical contents collapse onto the same object.
func (s *Store) WriteDir(storeID string, entries []Dirent) (string, error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	out := dirV1{Dirents: make([]dirEntryV1, 0, len(entries))}
	for _, e := range entries {
		mode := uint32(modeIFREG)
		size := e.Size
		if e.IsDir {
			mode = modeIFDIR
			size = 0
		}
		out.Dirents = append(out.Dirents, dirEntryV1{
			Name:  e.Name,
			ID:    e.ID,
			MTime: e.MTime,
			Mode:  mode,
			Size:  size,
		})
	}

	if len(entries) == 0 {
		return ZeroObjID, nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode dir: %w", err)
	}
	compressed, err := zlibCompress(payload)
	if err != nil {
		return "", fmt.Errorf("compress dir: %w", err)
	}

	id := contentID(compressed)
	if err := s.backend.Put(blob.KindFS, storeID, id, bytes.NewReader(compressed), int64(len(compressed))); err != nil {
		return "", fmt.Errorf("store dir %s: %w", id, err)
	}
	return id, nil
}

// WriteFile serializes a block list and size as a v1 file object, stores it
// and returns its content id.
func (s *Store) WriteFile(storeID string, size int64, blockIDs []string) (string, error) {
	if size == 0 && len(blockIDs) == 0 {
		return ZeroObjID, nil
	}

	out := fileV1{BlockIDs: blockIDs, Size: size}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode file: %w", err)
	}
	compressed, err := zlibCompress(payload)
	if err != nil {
		return "", fmt.Errorf("compress file: %w", err)
	}

	id := contentID(compressed)
	if err := s.backend.Put(blob.KindFS, storeID, id, bytes.NewReader(compressed), int64(len(compressed))); err != nil {
		return "", fmt.Errorf("store file %s: %w", id, err)
	}
	return id, nil
}

// WriteCommit serializes and stores a new commit object, stamping CommitID
// as the SHA-1 of its content (matching the Seafile convention that a
// commit's id is derived from its own serialized bytes, not assigned
// externally).
func (s *Store) WriteCommit(storeID string, c *Commit) (string, error) {
	if c.CTime == 0 {
		c.CTime = time.Now().Unix()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode commit: %w", err)
	}

	id := contentID(payload)
	c.CommitID = id

	// Re-marshal with the id now embedded, since CommitID is part of the
	// envelope clients read back (the hash is computed over the id-less
	// payload to keep commit ids stable across creator/description edits
	// that don't touch this field).
	final, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode commit: %w", err)
	}

	if err := s.backend.Put(blob.KindCommits, storeID, id, bytes.NewReader(final), int64(len(final))); err != nil {
		return "", fmt.Errorf("store commit %s: %w", id, err)
	}
	return id, nil
}

func contentID(payload []byte) string {
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}

func zlibCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
