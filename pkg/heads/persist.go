package heads

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// fileVersion is the only on-disk format version this build understands.
const fileVersion byte = 1

// Load reads an Index from path. A missing file is not an error: it
// yields an empty index, matching a freshly initialized workspace.
// An unknown version byte or any truncation/decoding failure is
// reported as an error — the format never silently drops data.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("heads: opening %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	version, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("heads: %s: empty file, missing version byte", path)
		}
		return nil, fmt.Errorf("heads: reading version from %s: %w", path, err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("heads: %s: unsupported version %d", path, version)
	}

	idx := New()
	for {
		var nodeBuf [32]byte
		if _, err := io.ReadFull(r, nodeBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("heads: %s: truncated node_id: %w", path, err)
		}
		nodeID, err := ids.FromBytes(nodeBuf[:])
		if err != nil {
			return nil, fmt.Errorf("heads: %s: decoding node_id: %w", path, err)
		}

		var ftLen uint32
		if err := binary.Read(r, binary.LittleEndian, &ftLen); err != nil {
			return nil, fmt.Errorf("heads: %s: truncated frame_type length: %w", path, err)
		}
		ftBuf := make([]byte, ftLen)
		if _, err := io.ReadFull(r, ftBuf); err != nil {
			return nil, fmt.Errorf("heads: %s: truncated frame_type: %w", path, err)
		}

		var frameBuf [32]byte
		if _, err := io.ReadFull(r, frameBuf[:]); err != nil {
			return nil, fmt.Errorf("heads: %s: truncated frame_id: %w", path, err)
		}
		frameID, err := ids.FromBytes(frameBuf[:])
		if err != nil {
			return nil, fmt.Errorf("heads: %s: decoding frame_id: %w", path, err)
		}

		idx.heads[key{nodeID, string(ftBuf)}] = frameID
	}

	return idx, nil
}

// Save atomically persists idx to path: serialize to path.tmp, fsync,
// then rename over path.
func Save(idx *Index, path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tmp := path + ".tmp"
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("heads: creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("heads: creating %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	if err := writeAll(w, idx); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("heads: flushing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("heads: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("heads: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("heads: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

func writeAll(w io.Writer, idx *Index) error {
	if _, err := w.Write([]byte{fileVersion}); err != nil {
		return fmt.Errorf("heads: writing version: %w", err)
	}
	for k, frameID := range idx.heads {
		if _, err := w.Write(k.node[:]); err != nil {
			return fmt.Errorf("heads: writing node_id: %w", err)
		}
		ft := []byte(k.frameType)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ft))); err != nil {
			return fmt.Errorf("heads: writing frame_type length: %w", err)
		}
		if _, err := w.Write(ft); err != nil {
			return fmt.Errorf("heads: writing frame_type: %w", err)
		}
		if _, err := w.Write(frameID[:]); err != nil {
			return fmt.Errorf("heads: writing frame_id: %w", err)
		}
	}
	return nil
}
