package rollingdb

import (
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/unkn0wn-root/rollingdb/codec"
)

func TestSettingsFanOutAndCarryForward(t *testing.T) {
	hooks := &recHooks{}
	db := openDB(t, t.TempDir(), func(o *Options) { o.Hooks = hooks })

	if _, ok, err := db.ReadSetting("head"); err != nil || ok {
		t.Fatalf("ReadSetting on fresh store: ok=%v err=%v", ok, err)
	}
	if err := db.WriteSetting("head", []byte("h1")); err != nil {
		t.Fatalf("WriteSetting: %v", err)
	}
	if err := db.WriteSetting("genesis", []byte("g")); err != nil {
		t.Fatalf("WriteSetting: %v", err)
	}

	for epoch := int64(1); epoch <= 3; epoch++ {
		if err := db.Rotate(epoch); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		v, ok, err := db.ReadSetting("head")
		if err != nil || !ok || string(v) != "h1" {
			t.Fatalf("epoch %d: head=%q ok=%v err=%v", epoch, v, ok, err)
		}
		if ok, err := db.SettingExists("genesis"); err != nil || !ok {
			t.Fatalf("epoch %d: genesis lost: ok=%v err=%v", epoch, ok, err)
		}
	}

	// carried into current itself, not just visible through old
	db.current.mu.RLock()
	cur := db.current.gen
	db.current.mu.RUnlock()
	if v, ok, err := cur.ReadSetting("genesis"); err != nil || !ok || string(v) != "g" {
		t.Fatalf("genesis not in current: %q ok=%v err=%v", v, ok, err)
	}

	if len(hooks.carried) != 6 {
		t.Fatalf("SettingCarried hooks = %v", hooks.carried)
	}

	if err := db.WriteSetting("head", []byte("h2")); err != nil {
		t.Fatalf("WriteSetting: %v", err)
	}
	if v, _, _ := db.ReadSetting("head"); string(v) != "h2" {
		t.Fatalf("head = %q, want h2", v)
	}

	names, err := db.SettingNames()
	if err != nil {
		t.Fatalf("SettingNames: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"genesis", "head"}) {
		t.Fatalf("SettingNames = %v", names)
	}
}

func TestCurrentValueWinsOverOld(t *testing.T) {
	db := openDB(t, t.TempDir(), nil)
	if err := db.WriteSetting("head", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := db.Rotate(1); err != nil {
		t.Fatal(err)
	}
	if err := db.WriteSetting("head", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.ReadSetting("head"); string(v) != "new" {
		t.Fatalf("head = %q", v)
	}
	if err := db.Rotate(2); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.ReadSetting("head"); string(v) != "new" {
		t.Fatalf("carry-forward resurrected stale value: %q", v)
	}
}

func TestRapidRotationsNeverExposeStaleSetting(t *testing.T) {
	db := openDB(t, t.TempDir(), nil)

	for i := 0; i < 30; i++ {
		want := strconv.Itoa(i)
		if err := db.WriteSetting("head", []byte(want)); err != nil {
			t.Fatalf("WriteSetting: %v", err)
		}
		for r := 0; r < 3; r++ {
			if err := db.Rotate(int64(i*3 + r)); err != nil {
				t.Fatalf("Rotate: %v", err)
			}
			v, ok, err := db.ReadSetting("head")
			if err != nil || !ok || string(v) != want {
				t.Fatalf("after write %d and %d rotations: %q ok=%v err=%v", i, r+1, v, ok, err)
			}
		}
	}
}

func TestConcurrentSettingWritesAndRotations(t *testing.T) {
	db := openDB(t, t.TempDir(), nil)
	if err := db.WriteSetting("head", []byte("0")); err != nil {
		t.Fatal(err)
	}

	const writes = 200
	var (
		wg   sync.WaitGroup
		done atomic.Bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer done.Store(true)
		for i := 1; i <= writes; i++ {
			if err := db.WriteSetting("head", []byte(strconv.Itoa(i))); err != nil {
				t.Errorf("WriteSetting: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		last := 0
		for !done.Load() {
			v, ok, err := db.ReadSetting("head")
			if err != nil || !ok {
				t.Errorf("ReadSetting: ok=%v err=%v", ok, err)
				return
			}
			n, _ := strconv.Atoi(string(v))
			if n < last {
				t.Errorf("setting went backwards: %d after %d", n, last)
				return
			}
			last = n
		}
	}()

	for epoch := int64(1); !done.Load(); epoch++ {
		if err := db.Rotate(epoch); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
	}
	wg.Wait()

	// two more rotations leave only carried values
	for epoch := int64(1000); epoch < 1002; epoch++ {
		if err := db.Rotate(epoch); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
	}
	v, ok, err := db.ReadSetting("head")
	if err != nil || !ok || string(v) != strconv.Itoa(writes) {
		t.Fatalf("final head = %q ok=%v err=%v, want %d", v, ok, err, writes)
	}
}

type chainHead struct {
	Epoch  int64    `json:"epoch"`
	Tipset []string `json:"tipset"`
}

func TestTypedSettings(t *testing.T) {
	db := openDB(t, t.TempDir(), nil)

	want := chainHead{Epoch: 99, Tipset: []string{"a", "b"}}
	if err := WriteSettingObject(db, "head", want, codec.JSON[chainHead]{}); err != nil {
		t.Fatalf("WriteSettingObject: %v", err)
	}
	got, ok, err := ReadSettingObject[chainHead](db, "head", codec.JSON[chainHead]{})
	if err != nil || !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadSettingObject: %+v ok=%v err=%v", got, ok, err)
	}

	genesis := sum(t, []byte("genesis"))
	if err := WriteSettingObject(db, "genesis", genesis, codec.Cid{}); err != nil {
		t.Fatalf("WriteSettingObject: %v", err)
	}
	if err := db.Rotate(1); err != nil {
		t.Fatal(err)
	}
	c, ok, err := ReadSettingObject[cid.Cid](db, "genesis", codec.Cid{})
	if err != nil || !ok || !c.Equals(genesis) {
		t.Fatalf("genesis = %s ok=%v err=%v", c, ok, err)
	}

	if _, ok, err := ReadSettingObject[chainHead](db, "missing", codec.JSON[chainHead]{}); err != nil || ok {
		t.Fatalf("missing: ok=%v err=%v", ok, err)
	}

	if err := db.WriteSetting("bad", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadSettingObject[chainHead](db, "bad", codec.JSON[chainHead]{}); err == nil {
		t.Fatalf("expected decode error")
	}

	limited := codec.LimitCodec[chainHead]{Inner: codec.JSON[chainHead]{}, MaxDecode: 4}
	if _, _, err := ReadSettingObject[chainHead](db, "head", limited); err == nil {
		t.Fatalf("expected size limit error")
	}
}
