package codec

import "encoding/json"

// JSON is the zero-config codec. Settings stored with it stay readable with
// `rollingdb settings get`.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
