package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindBlock byte = 1
	kindBulk  byte = 2

	// cid lengths are u16 on the wire
	maxCidLen = 0xFFFF
)

var (
	ErrCorrupt   = errors.New("rollingdb: corrupt cache entry")
	ErrCidLength = errors.New("rollingdb: cid length out of range")
	magic4       = [...]byte{'R', 'L', 'D', 'B'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Block: magic(4) | ver(1) | kind(1=block) | cidLen(u16 be) | cid(cidLen) | vlen(u32 be) | payload(vlen)
//
// The cid travels with the payload so a reader can reject an entry that was
// stored under the wrong key.
func EncodeBlock(cid, payload []byte) ([]byte, error) {
	if l := len(cid); l == 0 || l > maxCidLen {
		return nil, ErrCidLength
	}
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(cid) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBlock)
	writeItem(&buf, cid, payload)
	return buf.Bytes(), nil
}

func DecodeBlock(b []byte) (cid, payload []byte, err error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindBlock {
		return nil, nil, ErrCorrupt
	}
	cid, payload, off, err := readItem(b, hdr)
	if err != nil {
		return nil, nil, err
	}
	if off != len(b) {
		return nil, nil, ErrCorrupt
	}
	return cid, payload, nil
}

// Bulk:
//
//	magic(4) | ver(1) | kind(2=bulk) | n(u32 be)
//	cidLen(u16 be) | cid(cidLen) | vlen(u32 be) | payload(vlen) * n
type BulkItem struct {
	Cid     []byte
	Payload []byte
}

func EncodeBulk(items []BulkItem) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, it := range items {
		total += 2 + len(it.Cid) + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBulk)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		if l := len(it.Cid); l == 0 || l > maxCidLen {
			return nil, ErrCidLength
		}
		writeItem(&buf, it.Cid, it.Payload)
	}
	return buf.Bytes(), nil
}

func DecodeBulk(b []byte) ([]BulkItem, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindBulk {
		return nil, ErrCorrupt
	}

	n := int(binary.BigEndian.Uint32(b[6:hdr]))
	// every item needs at least 2+1+4 bytes
	if n < 0 || n > (len(b)-hdr)/7 {
		return nil, ErrCorrupt
	}

	off := hdr
	items := make([]BulkItem, 0, n)
	for i := 0; i < n; i++ {
		cid, payload, next, err := readItem(b, off)
		if err != nil {
			return nil, err
		}
		off = next
		items = append(items, BulkItem{Cid: cid, Payload: payload})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}

func writeItem(buf *bytes.Buffer, cid, payload []byte) {
	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(cid)))
	buf.Write(u2[:])
	buf.Write(cid)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
}

// readItem returns slices into b and the offset just past the item.
func readItem(b []byte, off int) (cid, payload []byte, next int, err error) {
	if off+2 > len(b) {
		return nil, nil, 0, ErrCorrupt
	}
	clen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if clen == 0 || clen > len(b)-off {
		return nil, nil, 0, ErrCorrupt
	}
	cid = b[off : off+clen]
	off += clen

	if off+4 > len(b) {
		return nil, nil, 0, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return nil, nil, 0, ErrCorrupt
	}
	payload = b[off : off+vlen]
	off += vlen
	return cid, payload, off, nil
}
