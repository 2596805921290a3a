// Package escrow tracks custodial transfers to phone numbers that have no
// registered wallet yet. The operator holds the funds at an escrow address
// until the recipient claims them (SETTLED) or the sender cancels
// (RETURNED).
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrNotFound is returned for an unknown escrow id.
var ErrNotFound = errors.New("escrow not found")

// Handle is the local record of one escrow.
type Handle struct {
	ID        string        `json:"id"`
	Phone     string        `json:"phone"`
	Address   types.Address `json:"address"`
	Sender    types.Address `json:"sender"`
	FromIndex uint32        `json:"from_index"`
	Amount    amount.Raw    `json:"amount"`
	Status    Status        `json:"status"`
	SendHash  types.Hash    `json:"send_hash"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Sender moves funds out of a local account. *reconcile.Engine implements it.
type Sender interface {
	Send(ctx context.Context, fromIndex uint32, to types.Address, amt amount.Raw, memo string) (types.Hash, error)
	AccountAddress(index uint32) (types.Address, error)
}

// SendResult describes a phone transfer. Escrow is nil when the phone was
// registered and the funds went straight to its wallet.
type SendResult struct {
	Hash   types.Hash
	Escrow *Handle
}

// Machine drives escrow lifecycles and persists their records.
type Machine struct {
	ledger ledger.Client
	sender Sender
	dir    Directory
	db     storage.DB

	mu  sync.Mutex
	now func() time.Time
}

// New creates a machine storing records in db, usually a
// storage.PrefixDB under "escrow/".
func New(client ledger.Client, sender Sender, dir Directory, db storage.DB) *Machine {
	return &Machine{
		ledger: client,
		sender: sender,
		dir:    dir,
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Send transfers amt from account fromIndex to phone. Registered numbers
// receive a plain send; otherwise an escrow is created, the funds are sent
// to its address and the record becomes FILLED.
func (m *Machine) Send(ctx context.Context, fromIndex uint32, phone string, amt amount.Raw) (*SendResult, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	addr, registered, err := m.dir.Lookup(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", phone, err)
	}
	if registered {
		hash, err := m.sender.Send(ctx, fromIndex, addr, amt, "")
		if err != nil {
			return nil, err
		}
		return &SendResult{Hash: hash}, nil
	}

	senderAddr, err := m.sender.AccountAddress(fromIndex)
	if err != nil {
		return nil, err
	}
	info, err := m.ledger.CreateEscrow(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("create escrow: %w", err)
	}
	status := Created
	if info.Status != "" {
		if status, err = ParseStatus(info.Status); err != nil {
			return nil, fmt.Errorf("create escrow: %w", err)
		}
		if status != Created {
			return nil, fmt.Errorf("create escrow %s: %w: new escrow is %s", info.ID, ErrEscrowState, status)
		}
	}

	now := m.now()
	h := &Handle{
		ID:        info.ID,
		Phone:     phone,
		Address:   info.Address,
		Sender:    senderAddr,
		FromIndex: fromIndex,
		Amount:    amt,
		Status:    Created,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.put(h); err != nil {
		return nil, err
	}
	log.Escrow.Info().Str("id", h.ID).Str("address", h.Address.String()).Msg("Escrow created")

	hash, err := m.sender.Send(ctx, fromIndex, h.Address, amt, "")
	if err != nil {
		// The record stays CREATED so the escrow can still be cancelled.
		return &SendResult{Escrow: h}, fmt.Errorf("fill escrow %s: %w", h.ID, err)
	}
	if err := m.advance(h, Filled); err != nil {
		return nil, err
	}
	h.SendHash = hash
	if err := m.put(h); err != nil {
		return nil, err
	}
	log.Escrow.Info().Str("id", h.ID).Str("block", hash.String()).Msg("Escrow filled")
	return &SendResult{Hash: hash, Escrow: h}, nil
}

// Cancel returns an open escrow's funds to the account that filled it.
// Only CREATED and FILLED escrows can be cancelled; anything else fails
// with ErrEscrowState before any remote call.
func (m *Machine) Cancel(ctx context.Context, id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if err := Transition(h.Status, Returned); err != nil {
		return nil, fmt.Errorf("cancel %s: %w", id, err)
	}
	if err := m.ledger.CancelEscrow(ctx, h.ID, h.Sender); err != nil {
		return nil, fmt.Errorf("cancel %s: %w", id, err)
	}
	if err := m.advance(h, Returned); err != nil {
		return nil, err
	}
	if err := m.put(h); err != nil {
		return nil, err
	}
	log.Escrow.Info().Str("id", id).Str("to", h.Sender.String()).Msg("Escrow returned")
	return h, nil
}

// Observe refreshes every open escrow from the operator and returns the
// records whose status changed. Reported regressions are logged and
// ignored. Lookup failures do not stop the refresh of other escrows.
func (m *Machine) Observe(ctx context.Context) ([]*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles, err := m.list()
	if err != nil {
		return nil, err
	}

	var (
		changed []*Handle
		errs    []error
	)
	for _, h := range handles {
		if h.Status.Terminal() {
			continue
		}
		remote, err := m.ledger.EscrowStatus(ctx, h.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("status %s: %w", h.ID, err))
			continue
		}
		st, err := ParseStatus(remote)
		if err != nil {
			errs = append(errs, fmt.Errorf("status %s: %w", h.ID, err))
			continue
		}
		if st == h.Status {
			continue
		}
		if !observable(h.Status, st) {
			log.Escrow.Warn().Str("id", h.ID).Str("local", string(h.Status)).Str("remote", string(st)).
				Msg("Ignoring escrow status regression")
			continue
		}
		h.Status = st
		h.UpdatedAt = m.now()
		if err := m.put(h); err != nil {
			return changed, err
		}
		log.Escrow.Info().Str("id", h.ID).Str("status", string(st)).Msg("Escrow status changed")
		changed = append(changed, h)
	}
	return changed, errors.Join(errs...)
}

// Get returns the record for id.
func (m *Machine) Get(id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// List returns all records, oldest first.
func (m *Machine) List() ([]*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list()
}

func (m *Machine) advance(h *Handle, to Status) error {
	if err := Transition(h.Status, to); err != nil {
		return err
	}
	h.Status = to
	h.UpdatedAt = m.now()
	return nil
}

func (m *Machine) put(h *Handle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal escrow: %w", err)
	}
	if err := m.db.Put([]byte(h.ID), data); err != nil {
		return fmt.Errorf("store escrow %s: %w", h.ID, err)
	}
	return nil
}

func (m *Machine) get(id string) (*Handle, error) {
	data, err := m.db.Get([]byte(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode escrow %s: %w", id, err)
	}
	return &h, nil
}

func (m *Machine) list() ([]*Handle, error) {
	var out []*Handle
	err := m.db.ForEach(nil, func(key, value []byte) error {
		var h Handle
		if err := json.Unmarshal(value, &h); err != nil {
			return fmt.Errorf("decode escrow %s: %w", key, err)
		}
		out = append(out, &h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
