// Package snapshot persists engine checkpoints in a pebble database,
// codec-encoded and lz4-compressed.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"

	"github.com/fxperp/fxperpd/internal/core/engine"
)

// Snapshot store errors.
var (
	ErrNoSnapshot = errors.New("no snapshot stored")
	ErrCorrupt    = errors.New("corrupt snapshot record")
)

var latestKey = []byte("meta/latest")

// Store holds engine checkpoints keyed by a monotone sequence number.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the snapshot database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", path, err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a checkpoint and returns its sequence number. The write is
// synced before returning.
func (s *Store) Save(st *engine.State) (uint64, error) {
	seq, err := s.latestSeq()
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return 0, err
	}
	seq++

	payload, err := encodeState(st)
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(snapshotKey(seq), payload, nil); err != nil {
		return 0, err
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := batch.Set(latestKey, seqBuf[:], nil); err != nil {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot %d: %w", seq, err)
	}
	return seq, nil
}

// Latest loads the most recent checkpoint. ErrNoSnapshot when the store
// is empty.
func (s *Store) Latest() (*engine.State, uint64, error) {
	seq, err := s.latestSeq()
	if err != nil {
		return nil, 0, err
	}
	st, err := s.Load(seq)
	if err != nil {
		return nil, 0, err
	}
	return st, seq, nil
}

// Load reads the checkpoint with the given sequence number.
func (s *Store) Load(seq uint64) (*engine.State, error) {
	raw, closer, err := s.db.Get(snapshotKey(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: seq %d", ErrNoSnapshot, seq)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return decodeState(raw)
}

// Prune deletes all checkpoints older than the newest keep. The latest
// pointer is untouched.
func (s *Store) Prune(keep int) error {
	latest, err := s.latestSeq()
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil
		}
		return err
	}
	if uint64(keep) >= latest {
		return nil
	}
	cutoff := latest - uint64(keep)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(snapshotKey(1), snapshotKey(cutoff+1), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) latestSeq() (uint64, error) {
	raw, closer, err := s.db.Get(latestKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, ErrNoSnapshot
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: latest pointer has %d bytes", ErrCorrupt, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func snapshotKey(seq uint64) []byte {
	key := make([]byte, 0, 9+8)
	key = append(key, []byte("snapshot/")...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

const (
	recordRaw        = 0
	recordCompressed = 1
)

// encodeState renders a checkpoint as a 1-byte compression flag, a 4-byte
// uncompressed-length header and the lz4 block (or raw bytes, when lz4
// gains nothing) of the msgpack encoding.
func encodeState(st *engine.State) ([]byte, error) {
	var mh codec.MsgpackHandle
	var plain []byte
	if err := codec.NewEncoderBytes(&plain, &mh).Encode(st); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(plain)))
	n, err := lz4.CompressBlock(plain, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}

	body := compressed[:n]
	flag := byte(recordCompressed)
	if n == 0 || n >= len(plain) {
		// Incompressible; CompressBlock signals this with n == 0.
		body = plain
		flag = recordRaw
	}

	payload := make([]byte, 5+len(body))
	payload[0] = flag
	binary.BigEndian.PutUint32(payload[1:5], uint32(len(plain)))
	copy(payload[5:], body)
	return payload, nil
}

func decodeState(payload []byte) (*engine.State, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(payload))
	}
	flag := payload[0]
	plainLen := binary.BigEndian.Uint32(payload[1:5])
	body := payload[5:]

	var plain []byte
	switch flag {
	case recordRaw:
		plain = body
	case recordCompressed:
		plain = make([]byte, plainLen)
		n, err := lz4.UncompressBlock(body, plain)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if uint32(n) != plainLen {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupt, plainLen, n)
		}
	default:
		return nil, fmt.Errorf("%w: unknown compression flag %d", ErrCorrupt, flag)
	}

	var mh codec.MsgpackHandle
	st := new(engine.State)
	if err := codec.NewDecoderBytes(plain, &mh).Decode(st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return st, nil
}
