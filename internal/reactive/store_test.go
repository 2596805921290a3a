package reactive

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard, "off")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) (*Store, storage.DB) {
	t.Helper()
	db := storage.NewPrefixDB(storage.NewMemory(), []byte("reactive/"))
	return New(db), db
}

func TestStore_SessionVariableScenario(t *testing.T) {
	s, _ := newTestStore(t)

	var before []string
	WatchVariable(s, VarCurrency, func(v string) { before = append(before, v) })

	require.NoError(t, SetVariable(s, VarCurrency, "eur"))

	var after []string
	WatchVariable(s, VarCurrency, func(v string) { after = append(after, v) })

	require.Equal(t, "eur", GetVariable(s, VarCurrency, "usd"))
	require.Equal(t, []string{"eur"}, before)
	require.Empty(t, after)
}

func TestStore_GetDefault(t *testing.T) {
	s, _ := newTestStore(t)
	require.Equal(t, "usd", s.Get("currency", "usd"))
	require.Equal(t, "usd", GetVariable(s, VarCurrency, "usd"))
	require.False(t, s.Has("currency"))
}

func TestStore_NormalizesThroughJSON(t *testing.T) {
	s, _ := newTestStore(t)

	type point struct {
		X int    `json:"x"`
		Y string `json:"y"`
	}
	require.NoError(t, s.Set("p", point{X: 1, Y: "a"}))
	require.Equal(t, map[string]any{"x": json.Number("1"), "y": "a"}, s.Get("p", nil))

	require.NoError(t, s.Set("flag", true))
	require.Equal(t, true, s.Get("flag", false))

	var notified any
	s.Watch("list", func(v any) { notified = v })
	require.NoError(t, s.Set("list", []string{"a", "b"}))
	require.Equal(t, []any{"a", "b"}, notified)
}

func TestStore_RejectsUnserializable(t *testing.T) {
	s, _ := newTestStore(t)
	called := false
	s.Watch("bad", func(any) { called = true })

	err := s.Set("bad", func() {})
	require.Error(t, err)
	require.False(t, called)
	require.False(t, s.Has("bad"))
}

func TestStore_MapTagging(t *testing.T) {
	s, db := newTestStore(t)
	require.NoError(t, s.Set("rates", map[uint32]string{2: "b", 1: "a"}))

	raw, err := db.Get(tableKey)
	require.NoError(t, err)
	var table map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &table))
	require.JSONEq(t, `{"dataType":"Map","value":[[1,"a"],[2,"b"]]}`, string(table["rates"]))

	require.Equal(t, map[string]any{"1": "a", "2": "b"}, s.Get("rates", nil))

	got := GetVariable(s, "rates", map[uint32]string(nil))
	require.Equal(t, map[uint32]string{1: "a", 2: "b"}, got)
}

func TestStore_MapTaggingInsideStruct(t *testing.T) {
	s, db := newTestStore(t)

	type limits struct {
		Caps    map[string]int `json:"caps"`
		Note    string         `json:"note,omitempty"`
		Skipped string         `json:"-"`
		Label   string
		hidden  int
	}
	require.NoError(t, s.Set("limits", limits{Caps: map[string]int{"b": 2, "a": 1}, Skipped: "x", Label: "l", hidden: 9}))

	raw, err := db.Get(tableKey)
	require.NoError(t, err)
	var table map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &table))
	require.JSONEq(t, `{"caps":{"dataType":"Map","value":[["a",1],["b",2]]},"Label":"l"}`, string(table["limits"]))

	want := map[string]any{
		"caps":  map[string]any{"a": json.Number("1"), "b": json.Number("2")},
		"Label": "l",
	}
	require.Equal(t, want, s.Get("limits", nil))

	fresh := New(db)
	require.Equal(t, want, fresh.Get("limits", nil))
}

func TestStore_HydratesFromStorage(t *testing.T) {
	inner := storage.NewMemory()
	first := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.NoError(t, SetVariable(first, VarSelectedAccount, uint32(3)))
	require.NoError(t, first.Set("nested", map[string]map[string]int{"a": {"b": 1}}))
	require.NoError(t, ProcessingPending(first).Set(true))

	second := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.Equal(t, uint32(3), GetVariable(second, VarSelectedAccount, uint32(0)))
	require.Equal(t, map[string]any{"a": map[string]any{"b": json.Number("1")}}, second.Get("nested", nil))
	require.True(t, ProcessingPending(second).Get(false))
}

func TestStore_FullTableWrite(t *testing.T) {
	inner := storage.NewMemory()
	first := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.NoError(t, first.Set("a", 1))

	// A fresh instance must hydrate before writing or "a" would be lost.
	second := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.NoError(t, second.Set("b", 2))

	third := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.Equal(t, json.Number("1"), third.Get("a", nil))
	require.Equal(t, json.Number("2"), third.Get("b", nil))
}

// failingDB fails every write.
type failingDB struct{ storage.DB }

func (failingDB) Put(_, _ []byte) error { return errors.New("disk full") }

func TestStore_PersistFailureStillNotifies(t *testing.T) {
	s := New(failingDB{storage.NewMemory()})
	var got []bool
	ProcessingPending(s).Watch(func(v bool) { got = append(got, v) })

	require.NoError(t, ProcessingPending(s).Set(true))
	require.True(t, ProcessingPending(s).Get(false))
	require.Equal(t, []bool{true}, got)
}

// flakyDB fails the first reads, then behaves like the wrapped DB.
type flakyDB struct {
	storage.DB
	failReads int
}

func (f *flakyDB) Get(key []byte) ([]byte, error) {
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("io timeout")
	}
	return f.DB.Get(key)
}

func TestStore_ReadFailureKeepsPersistedTable(t *testing.T) {
	inner := storage.NewMemory()
	first := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.NoError(t, SetVariable(first, VarCurrency, "eur"))

	flaky := &flakyDB{DB: storage.NewPrefixDB(inner, []byte("reactive/")), failReads: 1}
	second := New(flaky)
	require.NoError(t, SetVariable(second, VarCountry, "DE"))
	require.Equal(t, "DE", GetVariable(second, VarCountry, ""))

	// The retry on the next access hydrates without clobbering newer values.
	require.Equal(t, "eur", GetVariable(second, VarCurrency, ""))
	require.Equal(t, "DE", GetVariable(second, VarCountry, ""))

	fresh := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.Equal(t, "eur", GetVariable(fresh, VarCurrency, ""))

	require.NoError(t, SetVariable(second, VarCountry, "FR"))
	fresh = New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.Equal(t, "eur", GetVariable(fresh, VarCurrency, ""))
	require.Equal(t, "FR", GetVariable(fresh, VarCountry, ""))
}

func TestStore_Unwatch(t *testing.T) {
	s, _ := newTestStore(t)
	var a, b int
	subA := s.Watch("k", func(any) { a++ })
	s.Watch("k", func(any) { b++ })

	require.NoError(t, s.Set("k", 1))
	s.Unwatch(subA)
	s.Unwatch(subA)
	require.NoError(t, s.Set("k", 2))

	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
	require.Equal(t, "k", subA.Key())
}

func TestStore_WatchOrder(t *testing.T) {
	s, _ := newTestStore(t)
	var order []string
	s.Watch("k", func(any) { order = append(order, "first") })
	s.Watch("k", func(any) { order = append(order, "second") })
	require.NoError(t, s.Set("k", "v"))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestStore_Clear(t *testing.T) {
	inner := storage.NewMemory()
	s := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.NoError(t, SetVariable(s, VarCountry, "DE"))
	require.NoError(t, s.Clear())

	require.Equal(t, "", GetVariable(s, VarCountry, ""))
	fresh := New(storage.NewPrefixDB(inner, []byte("reactive/")))
	require.False(t, fresh.Has(VarCountry))
}

func TestStore_ConcurrentSetsSerialize(t *testing.T) {
	s, _ := newTestStore(t)
	var (
		mu   sync.Mutex
		seen []int
	)
	topic := NewTopic[int](s, "counter")
	topic.Watch(func(v int) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, topic.Set(i))
		}(i)
	}
	wg.Wait()

	require.Len(t, seen, 20)
	require.Equal(t, seen[len(seen)-1], topic.Get(-1))
}
