package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

func testBuilder(t *testing.T) (*Builder, types.Address) {
	t.Helper()
	rep := testKey(t).Address()
	return NewBuilder(rep), rep
}

func TestBuildSend(t *testing.T) {
	b, rep := testBuilder(t)
	sender, recipient := testKey(t), testKey(t)
	head := ChainHead{
		Frontier:       crypto.Hash([]byte("frontier")),
		Balance:        amount.NewRaw(1000),
		Representative: rep,
	}

	blk, err := b.BuildSend(head, sender.Address(), recipient.Address(), amount.NewRaw(400), sender)
	if err != nil {
		t.Fatalf("BuildSend() error: %v", err)
	}
	if blk.Previous != head.Frontier {
		t.Errorf("Previous = %s, want frontier %s", blk.Previous, head.Frontier)
	}
	if blk.Balance.String() != "600" {
		t.Errorf("Balance = %s, want 600", blk.Balance)
	}
	if to, ok := blk.Link.Address(); !ok || to != recipient.Address() {
		t.Errorf("Link = %s, want recipient address", blk.Link)
	}
	if blk.Representative != rep {
		t.Error("send should keep the current representative")
	}
	if err := Verify(blk); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
}

func TestBuildSend_InsufficientFunds(t *testing.T) {
	b, rep := testBuilder(t)
	sender := testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("f")), Balance: amount.NewRaw(10), Representative: rep}

	_, err := b.BuildSend(head, sender.Address(), testKey(t).Address(), amount.NewRaw(11), sender)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("BuildSend() error = %v, want ErrInsufficientFunds", err)
	}
}

func TestBuildSend_Rejects(t *testing.T) {
	b, rep := testBuilder(t)
	sender, other := testKey(t), testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("f")), Balance: amount.NewRaw(10), Representative: rep}
	big := string(bytes.Repeat([]byte("m"), MaxMemoSize+1))

	tests := []struct {
		name string
		from types.Address
		to   types.Address
		amt  amount.Raw
		opts []SendOption
		want error
	}{
		{"zero amount", sender.Address(), other.Address(), amount.Raw{}, nil, ErrZeroAmount},
		{"wrong signer", other.Address(), sender.Address(), amount.NewRaw(1), nil, ErrSignerMismatch},
		{"self send", sender.Address(), sender.Address(), amount.NewRaw(1), nil, ErrSelfSend},
		{"memo too large", sender.Address(), other.Address(), amount.NewRaw(1), []SendOption{WithMemo(big)}, ErrMemoTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.BuildSend(head, tt.from, tt.to, tt.amt, sender, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Errorf("BuildSend() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildSend_MemoIsSealed(t *testing.T) {
	b, rep := testBuilder(t)
	sender, recipient := testKey(t), testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("f")), Balance: amount.NewRaw(10), Representative: rep}
	memo := "dinner on friday"

	blk, err := b.BuildSend(head, sender.Address(), recipient.Address(), amount.NewRaw(1), sender, WithMemo(memo))
	if err != nil {
		t.Fatalf("BuildSend() error: %v", err)
	}
	if len(blk.Memo) == 0 || bytes.Contains(blk.Memo, []byte(memo)) {
		t.Fatal("memo must be present and sealed")
	}
	wire, err := json.Marshal(blk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if bytes.Contains(wire, []byte(memo)) {
		t.Fatal("plaintext memo leaked into wire payload")
	}

	got, err := OpenMemo(blk, recipient)
	if err != nil || got != memo {
		t.Errorf("recipient OpenMemo = %q, %v", got, err)
	}
	got, err = OpenMemo(blk, sender)
	if err != nil || got != memo {
		t.Errorf("sender OpenMemo = %q, %v", got, err)
	}
	if _, err := OpenMemo(blk, testKey(t)); err == nil {
		t.Error("third party should not open the memo")
	}
}

func TestBuildReceive_OpensAccount(t *testing.T) {
	b, rep := testBuilder(t)
	key := testKey(t)
	pending := PendingBlock{
		Hash:   crypto.Hash([]byte("H1")),
		Amount: amount.MustParseRaw("1000000000000000000000000000"),
		Source: testKey(t).Address(),
	}

	blk, err := b.BuildReceive(ChainHead{}, pending, key)
	if err != nil {
		t.Fatalf("BuildReceive() error: %v", err)
	}
	if !blk.Previous.IsZero() {
		t.Error("open block should have a zero previous")
	}
	if blk.Representative != rep {
		t.Error("open block should use the default representative")
	}
	if blk.Balance.Cmp(pending.Amount) != 0 {
		t.Errorf("Balance = %s, want %s", blk.Balance, pending.Amount)
	}
	if h, ok := blk.Link.Hash(); !ok || h != pending.Hash {
		t.Errorf("Link = %s, want pending hash", blk.Link)
	}
	if blk.Account != key.Address() {
		t.Error("Account should be the signer's address")
	}
	if !bytes.Equal(blk.Root(), blk.Account[:]) {
		t.Error("Root of an open block is the account")
	}
	if err := Verify(blk); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
}

func TestBuildReceive_NoRepresentative(t *testing.T) {
	b := NewBuilder(types.Address{})
	pending := PendingBlock{Hash: crypto.Hash([]byte("p")), Amount: amount.NewRaw(1)}
	if _, err := b.BuildReceive(ChainHead{}, pending, testKey(t)); !errors.Is(err, ErrNoRepresentative) {
		t.Errorf("BuildReceive() error = %v, want ErrNoRepresentative", err)
	}
}

func TestBuildReceive_ChainOrdering(t *testing.T) {
	b, rep := testBuilder(t)
	key := testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("genesis")), Balance: amount.NewRaw(5), Representative: rep}

	prev := head.Frontier
	for i := 0; i < 4; i++ {
		pending := PendingBlock{Hash: crypto.Hash([]byte{byte(i)}), Amount: amount.NewRaw(uint64(i + 1))}
		blk, err := b.BuildReceive(head, pending, key)
		if err != nil {
			t.Fatalf("BuildReceive(%d) error: %v", i, err)
		}
		if blk.Previous != prev {
			t.Fatalf("block %d previous = %s, want %s", i, blk.Previous, prev)
		}
		prev = blk.Hash()
		head = ChainHead{Frontier: prev, Balance: blk.Balance, Representative: blk.Representative}
	}
	if head.Balance.String() != "15" {
		t.Errorf("final balance = %s, want 15", head.Balance)
	}
}

func TestVerify_Tampered(t *testing.T) {
	b, rep := testBuilder(t)
	key := testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("f")), Balance: amount.NewRaw(10), Representative: rep}
	blk, err := b.BuildSend(head, key.Address(), testKey(t).Address(), amount.NewRaw(3), key)
	if err != nil {
		t.Fatalf("BuildSend() error: %v", err)
	}

	tampered := blk.WithWork("ffff")
	tampered.Balance = amount.NewRaw(9)
	if err := Verify(tampered); !errors.Is(err, ErrBadSignature) {
		t.Errorf("Verify(tampered) = %v, want ErrBadSignature", err)
	}
	if err := Verify(blk.WithWork("ffff")); err != nil {
		t.Errorf("work must not affect the signature: %v", err)
	}
}

func TestSignedBlock_JSON(t *testing.T) {
	b, rep := testBuilder(t)
	key := testKey(t)
	head := ChainHead{Frontier: crypto.Hash([]byte("f")), Balance: amount.NewRaw(10), Representative: rep}
	blk, err := b.BuildSend(head, key.Address(), testKey(t).Address(), amount.NewRaw(3), key, WithMemo("hi"))
	if err != nil {
		t.Fatalf("BuildSend() error: %v", err)
	}

	data, err := json.Marshal(blk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got SignedBlock
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Hash() != blk.Hash() {
		t.Error("decoded block hash differs")
	}
	if err := Verify(&got); err != nil {
		t.Errorf("decoded block should verify: %v", err)
	}
}
