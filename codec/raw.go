package codec

import "github.com/ipfs/go-cid"

// Bytes is an identity codec for []byte values.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String stores Go strings as their UTF-8 bytes without validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// Cid stores a CID in its binary form, e.g. a chain head pointer.
type Cid struct{}

func (Cid) Encode(c cid.Cid) ([]byte, error) { return c.Bytes(), nil }
func (Cid) Decode(b []byte) (cid.Cid, error) { return cid.Cast(b) }
