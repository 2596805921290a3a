package work

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

var testRoot = []byte{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x01, 0x02, 0x03}

func TestNewGenerator_ZeroDifficulty(t *testing.T) {
	_, err := NewGenerator(0, 1)
	if !errors.Is(err, ErrZeroDifficulty) {
		t.Fatalf("NewGenerator(0) err = %v, want ErrZeroDifficulty", err)
	}
}

func TestTarget(t *testing.T) {
	if target(1).Cmp(maxUint256) != 0 {
		t.Fatal("target(1) should be maxUint256")
	}
	half := new(big.Int).Div(maxUint256, big.NewInt(2))
	if target(2).Cmp(half) != 0 {
		t.Fatalf("target(2) = %s, want %s", target(2), half)
	}
}

func TestGenerateWork_SingleThread(t *testing.T) {
	g, err := NewGenerator(256, 1)
	if err != nil {
		t.Fatal(err)
	}
	w, err := g.GenerateWork(context.Background(), testRoot)
	if err != nil {
		t.Fatalf("GenerateWork: %v", err)
	}
	if len(w) != NonceSize*2 {
		t.Fatalf("work %q has wrong length", w)
	}
	if err := Validate(testRoot, w, 256); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGenerateWork_Parallel(t *testing.T) {
	g, err := NewGenerator(1024, 4)
	if err != nil {
		t.Fatal(err)
	}
	w, err := g.GenerateWork(context.Background(), testRoot)
	if err != nil {
		t.Fatalf("GenerateWork: %v", err)
	}
	if err := Validate(testRoot, w, 1024); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGenerateWork_Deterministic(t *testing.T) {
	g, _ := NewGenerator(512, 1)
	a, err := g.GenerateWork(context.Background(), testRoot)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.GenerateWork(context.Background(), testRoot)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("single-thread search not deterministic: %s != %s", a, b)
	}
}

func TestGenerateWork_Cancelled(t *testing.T) {
	// Unreachable difficulty: only cancellation ends the search.
	g, _ := NewGenerator(^uint64(0), 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.GenerateWork(ctx, testRoot)
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context error", err)
	}
}

func TestGenerateWork_EmptyRoot(t *testing.T) {
	g, _ := NewGenerator(1, 1)
	if _, err := g.GenerateWork(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestValidate(t *testing.T) {
	g, _ := NewGenerator(4096, 1)
	w, err := g.GenerateWork(context.Background(), testRoot)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		root    []byte
		work    string
		diff    uint64
		wantErr error
	}{
		{"valid", testRoot, w, 4096, nil},
		{"lower difficulty", testRoot, w, 1, nil},
		{"zero difficulty", testRoot, w, 0, ErrZeroDifficulty},
		{"impossible difficulty", testRoot, w, ^uint64(0), ErrInsufficientWork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.root, tt.work, tt.diff)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := Validate(testRoot, "zz", 1); err == nil {
		t.Error("expected error for bad hex")
	}
	if err := Validate(testRoot, "0102", 1); err == nil {
		t.Error("expected error for short work")
	}
}
