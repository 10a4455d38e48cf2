// Package codec turns typed setting values into the raw bytes a generation
// stores. Any Codec can be passed to rollingdb.ReadSettingObject and
// rollingdb.WriteSettingObject.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
