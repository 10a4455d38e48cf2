package boltdb

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/rollingdb/engine"
)

func sum(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum(data)
	require.NoError(t, err)
	return c
}

func newStore(t *testing.T) engine.Engine {
	t.Helper()
	s, err := NewOpener(Config{NoSync: true}).Create(filepath.Join(t.TempDir(), "gen"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBlocks(t *testing.T) {
	tests := []struct {
		name string
		test func(*testing.T, engine.Engine)
	}{
		{name: "miss", test: testMiss},
		{name: "put get", test: testPutGet},
		{name: "empty value", test: testEmptyValue},
		{name: "put many", test: testPutMany},
		{name: "for each", test: testForEach},
		{name: "for each error", test: testForEachError},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			test.test(t, newStore(t))
		})
	}
}

func testMiss(t *testing.T, s engine.Engine) {
	k := sum(t, []byte("absent"))

	v, ok, err := s.Get(k)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)

	has, err := s.Has(k)
	require.NoError(t, err)
	require.False(t, has)
}

func testPutGet(t *testing.T, s engine.Engine) {
	data := []byte("hello block")
	k := sum(t, data)

	require.NoError(t, s.Put(k, data))
	// idempotent
	require.NoError(t, s.Put(k, data))

	v, ok, err := s.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, data, v)

	has, err := s.Has(k)
	require.NoError(t, err)
	require.True(t, has)
}

func testEmptyValue(t *testing.T, s engine.Engine) {
	k := sum(t, nil)
	require.NoError(t, s.Put(k, []byte{}))

	v, ok, err := s.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, v)
}

func testPutMany(t *testing.T, s engine.Engine) {
	var blocks []engine.Block
	for i := 0; i < 50; i++ {
		data := []byte(fmt.Sprintf("block-%d", i))
		blocks = append(blocks, engine.Block{Cid: sum(t, data), Data: data})
	}
	require.NoError(t, s.PutMany(blocks))
	require.NoError(t, s.PutMany(nil))

	for _, b := range blocks {
		v, ok, err := s.Get(b.Cid)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, b.Data, v)
	}
}

func testForEach(t *testing.T, s engine.Engine) {
	want := make(map[string][]byte)
	for i := 0; i < 10; i++ {
		data := []byte(fmt.Sprintf("iter-%d", i))
		k := sum(t, data)
		want[k.KeyString()] = data
		require.NoError(t, s.Put(k, data))
	}

	got := make(map[string][]byte)
	err := s.ForEach(func(k cid.Cid, data []byte) error {
		got[k.KeyString()] = data
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func testForEachError(t *testing.T, s engine.Engine) {
	for i := 0; i < 3; i++ {
		data := []byte{byte(i)}
		require.NoError(t, s.Put(sum(t, data), data))
	}

	stop := errors.New("stop")
	calls := 0
	err := s.ForEach(func(cid.Cid, []byte) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestSettings(t *testing.T) {
	s := newStore(t)

	_, ok, err := s.ReadSetting("head")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.WriteSetting("head", []byte("a")))
	require.NoError(t, s.WriteSetting("genesis", []byte("g")))
	require.NoError(t, s.WriteSetting("head", []byte("b")))

	v, ok, err := s.ReadSetting("head")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("b"), v)

	exists, err := s.SettingExists("genesis")
	require.NoError(t, err)
	require.True(t, exists)

	names, err := s.SettingNames()
	require.NoError(t, err)
	require.Equal(t, []string{"genesis", "head"}, names)
}

func TestOpenMissing(t *testing.T) {
	_, err := NewOpener(Config{}).Open(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, engine.ErrNotExist)
}

func TestReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen")
	o := NewOpener(Config{})

	s, err := o.Create(dir)
	require.NoError(t, err)
	data := []byte("durable")
	k := sum(t, data)
	require.NoError(t, s.Put(k, data))
	require.NoError(t, s.WriteSetting("name", []byte("v")))

	size, err := s.SizeOnDisk()
	require.NoError(t, err)
	require.NotZero(t, size)
	require.NoError(t, s.Close())

	s, err = o.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, data, v)

	v, ok, err = s.ReadSetting("name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}
