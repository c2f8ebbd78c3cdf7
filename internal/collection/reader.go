// Package collection reads polygon collections: a compact binary list of
// polygons with JSON properties, shipped as files or fetched per region.
package collection

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/tysonmote/gommap"
)

// FormatVersion is the only version Parse accepts.
const FormatVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported collection version")
	ErrTruncated          = errors.New("truncated collection")
)

// ID is a 128-bit record identifier stored as two little-endian halves.
type ID struct {
	Lsb int64
	Msb int64
}

func (id ID) String() string {
	return fmt.Sprintf("%016x%016x", uint64(id.Msb), uint64(id.Lsb))
}

// Record is one polygon. Polygon holds the serialized geometry untouched; when
// the record came from a File it aliases the mapping and is only valid until
// Close.
type Record struct {
	ID         ID
	Properties geojson.Properties
	Polygon    []byte
}

type cursor struct {
	data []byte
	off  int
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.data[c.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at byte %d", ErrTruncated, c.off)
	}
	c.off += n
	return v, nil
}

func (c *cursor) int64() (int64, error) {
	if len(c.data)-c.off < 8 {
		return 0, fmt.Errorf("%w: id at byte %d", ErrTruncated, c.off)
	}
	v := int64(binary.LittleEndian.Uint64(c.data[c.off:]))
	c.off += 8
	return v, nil
}

func (c *cursor) bytes() ([]byte, error) {
	n, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(c.data)-c.off) < n {
		return nil, fmt.Errorf("%w: %d bytes at byte %d", ErrTruncated, n, c.off)
	}
	b := c.data[c.off : c.off+int(n)]
	c.off += int(n)
	return b, nil
}

// Parse decodes every record in data.
func Parse(data []byte) ([]Record, error) {
	c := &cursor{data: data}
	version, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	count, err := c.uvarint()
	if err != nil {
		return nil, err
	}

	// each record needs at least 18 bytes
	if count > uint64(len(data)/18+1) {
		return nil, fmt.Errorf("%w: %d records declared in %d bytes", ErrTruncated, count, len(data))
	}
	records := make([]Record, 0, count)
	for i := uint64(0); i < count; i++ {
		var r Record
		if r.ID.Lsb, err = c.int64(); err != nil {
			return nil, err
		}
		if r.ID.Msb, err = c.int64(); err != nil {
			return nil, err
		}
		raw, err := c.bytes()
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Properties); err != nil {
				return nil, fmt.Errorf("record %s properties: %w", r.ID, err)
			}
		}
		if r.Polygon, err = c.bytes(); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Marshal encodes records in the collection format.
func Marshal(records []Record) ([]byte, error) {
	buf := binary.AppendUvarint(nil, FormatVersion)
	buf = binary.AppendUvarint(buf, uint64(len(records)))
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.ID.Lsb))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(r.ID.Msb))
		props := []byte("{}")
		if r.Properties != nil {
			var err error
			if props, err = json.Marshal(r.Properties); err != nil {
				return nil, fmt.Errorf("record %s properties: %w", r.ID, err)
			}
		}
		buf = binary.AppendUvarint(buf, uint64(len(props)))
		buf = append(buf, props...)
		buf = binary.AppendUvarint(buf, uint64(len(r.Polygon)))
		buf = append(buf, r.Polygon...)
	}
	return buf, nil
}

// File is a memory-mapped collection.
type File struct {
	Path    string
	Records []Record

	file *os.File
	mmap gommap.MMap
}

// Open maps path read-only and parses it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: %w: empty file", path, ErrTruncated)
	}
	mmap, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	records, err := Parse(mmap)
	if err != nil {
		mmap.UnsafeUnmap()
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Path: path, Records: records, file: f, mmap: mmap}, nil
}

// Bytes is the mapped file content.
func (f *File) Bytes() []byte {
	return f.mmap
}

// Close unmaps the file. Records must not be used afterwards.
func (f *File) Close() error {
	f.Records = nil
	if err := f.mmap.UnsafeUnmap(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}
