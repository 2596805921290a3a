package reactive

import (
	"encoding/json"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
)

// Well-known keys.
const (
	KeyAccountsBalances  = "ACCOUNTS_BALANCES"
	KeyProcessingPending = "PROCESSING_PENDING"
)

// Session variable names.
const (
	VarSelectedAccount = "selectedAccount"
	VarCurrency        = "currency"
	VarCountry         = "country"
)

// Topic is a typed view of one store key.
type Topic[T any] struct {
	store *Store
	key   string
}

// NewTopic binds key in s to the type T.
func NewTopic[T any](s *Store, key string) Topic[T] {
	return Topic[T]{store: s, key: key}
}

// Key returns the underlying store key.
func (t Topic[T]) Key() string { return t.key }

// Set stores v.
func (t Topic[T]) Set(v T) error {
	return t.store.Set(t.key, v)
}

// Get returns the stored value, or def when absent or not convertible to T.
func (t Topic[T]) Get(def T) T {
	v := t.store.Get(t.key, nil)
	if v == nil {
		return def
	}
	out, err := convert[T](v)
	if err != nil {
		log.Store.Warn().Err(err).Str("key", t.key).Msg("Stored value has unexpected shape")
		return def
	}
	return out
}

// Watch calls fn with each new value. Values that do not convert to T are
// logged and skipped.
func (t Topic[T]) Watch(fn func(T)) Subscription {
	return t.store.Watch(t.key, func(v any) {
		out, err := convert[T](v)
		if err != nil {
			log.Store.Warn().Err(err).Str("key", t.key).Msg("Dropping notification with unexpected shape")
			return
		}
		fn(out)
	})
}

func convert[T any](v any) (T, error) {
	var out T
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// ProcessingPending is the flag raised while a settlement sweep runs.
func ProcessingPending(s *Store) Topic[bool] {
	return NewTopic[bool](s, KeyProcessingPending)
}

// SetVariable stores a session variable.
func SetVariable[T any](s *Store, name string, v T) error {
	return NewTopic[T](s, name).Set(v)
}

// GetVariable reads a session variable, returning def when unset.
func GetVariable[T any](s *Store, name string, def T) T {
	return NewTopic[T](s, name).Get(def)
}

// WatchVariable subscribes to a session variable.
func WatchVariable[T any](s *Store, name string, fn func(T)) Subscription {
	return NewTopic[T](s, name).Watch(fn)
}
