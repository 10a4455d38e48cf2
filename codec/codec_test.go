package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type head struct {
	Epoch  int64     `json:"epoch" msgpack:"epoch" cbor:"epoch"`
	Tipset []string  `json:"tipset" msgpack:"tipset" cbor:"tipset"`
	SeenAt time.Time `json:"seen_at" msgpack:"seen_at" cbor:"seen_at"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestStructCodecs(t *testing.T) {
	want := head{Epoch: 42, Tipset: []string{"a", "b"}, SeenAt: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)}

	codecs := map[string]Codec[head]{
		"json":    JSON[head]{},
		"msgpack": Msgpack[head]{},
		"cbor":    MustCBOR[head](),
	}
	for name, c := range codecs {
		got := roundTrip(t, c, want)
		if got.Epoch != want.Epoch || len(got.Tipset) != 2 || got.Tipset[1] != "b" || !got.SeenAt.Equal(want.SeenAt) {
			t.Fatalf("%s: got %+v want %+v", name, got, want)
		}
	}
}

func TestMapEncodingIsStable(t *testing.T) {
	codecs := map[string]Codec[map[string]int]{
		"cbor":    MustCBOR[map[string]int](),
		"msgpack": Msgpack[map[string]int]{},
	}
	for name, c := range codecs {
		a, err := c.Encode(map[string]int{"z": 1, "a": 2, "m": 3})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 10; i++ {
			b, err := c.Encode(map[string]int{"m": 3, "a": 2, "z": 1})
			if err != nil {
				t.Fatal(err)
			}
			if string(a) != string(b) {
				t.Fatalf("%s: encoding differs: %x vs %x", name, a, b)
			}
		}
	}
}

func TestCBORRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	dup := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	if _, err := MustCBOR[map[string]int]().Decode(dup); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} })
	got := roundTrip[*wrapperspb.Int64Value](t, c, wrapperspb.Int64(1234))
	if got.GetValue() != 1234 {
		t.Fatalf("got %d want 1234", got.GetValue())
	}
	if _, err := (Protobuf[*wrapperspb.Int64Value]{}).Decode(nil); err == nil {
		t.Fatalf("expected error from zero-value codec")
	}
}

func TestCid(t *testing.T) {
	want, err := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256).Sum([]byte("genesis"))
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip[cid.Cid](t, Cid{}, want)
	if !got.Equals(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if _, err := (Cid{}).Decode([]byte("nope")); err == nil {
		t.Fatalf("expected error decoding garbage cid")
	}
}

func TestRaw(t *testing.T) {
	if got := roundTrip[string](t, String{}, "héllo"); got != "héllo" {
		t.Fatalf("String got %q", got)
	}
	if got := roundTrip[[]byte](t, Bytes{}, []byte{1, 2}); len(got) != 2 || got[1] != 2 {
		t.Fatalf("Bytes got %x", got)
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("at limit: v=%q err=%v", v, err)
	}
	unlimited := LimitCodec[string]{Inner: String{}}
	if _, err := unlimited.Decode(make([]byte, 1<<16)); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}
