package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/internal/hash"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	magic         = "VFSN"
	formatVersion = 1
	headerSize    = 8
	footerSize    = 4
)

type payload struct {
	Meta   Meta                 `msgpack:"meta"`
	Tables []columnar.TableData `msgpack:"tables"`
}

// Encode serializes the tables and metadata of s.
func Encode(s *Snapshot, codec compress.Codec) ([]byte, error) {
	p := payload{Meta: s.meta}
	for _, t := range s.index.Tables() {
		td, err := t.Export()
		if err != nil {
			return nil, err
		}
		p.Tables = append(p.Tables, td)
	}

	raw, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	block, err := compress.Block(codec, raw)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(block)+footerSize)
	copy(out, magic)
	binary.LittleEndian.PutUint16(out[4:], formatVersion)
	out[6] = byte(codec)
	out = append(out, block...)
	out = binary.LittleEndian.AppendUint32(out, hash.CRC32C(out))
	return out, nil
}

// Decode parses a snapshot file and rebuilds its vector and keyword indexes.
// Errors are not wrapped in LoadError; the Manager does that.
func Decode(ctx context.Context, data []byte, factory ann.Factory, parallelism int) (*Snapshot, error) {
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if string(data[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	body := data[:len(data)-footerSize]
	if want := binary.LittleEndian.Uint32(data[len(data)-footerSize:]); hash.CRC32C(body) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	raw, err := compress.Unblock(compress.Codec(data[6]), body[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var p payload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	index := columnar.NewIndex()
	for _, td := range p.Tables {
		t, err := columnar.ImportTable(td)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		index.Put(t)
	}
	if p.Meta.Marker == "" {
		return nil, fmt.Errorf("%w: missing marker", ErrCorrupt)
	}
	p.Meta.RowCounts = index.RowCounts()
	return Materialize(ctx, p.Meta, index, factory, parallelism)
}
