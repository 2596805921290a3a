// Package work computes and checks the proof of work attached to blocks.
//
// Work is an 8-byte nonce, hex encoded little-endian, such that
// Hash(nonce || root) read as a big-endian integer is at most
// MaxUint256 / difficulty. The root is the account's frontier, or its
// public key for an opening block.
package work

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
)

// Work errors.
var (
	ErrInsufficientWork = errors.New("work does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty must be > 0")
	ErrExhausted        = errors.New("nonce space exhausted")
)

// NonceSize is the length of the work nonce in bytes.
const NonceSize = 8

// DefaultDifficulty keeps local generation to well under a second on one
// core.
const DefaultDifficulty = 1 << 16

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// target returns MaxUint256 / difficulty.
func target(difficulty uint64) *big.Int {
	return new(big.Int).Div(maxUint256, new(big.Int).SetUint64(difficulty))
}

// Generator searches for work locally. It satisfies ledger.WorkSource.
type Generator struct {
	Difficulty uint64
	// Threads is the number of search goroutines. 0 uses GOMAXPROCS.
	Threads int
}

// NewGenerator creates a generator for difficulty.
func NewGenerator(difficulty uint64, threads int) (*Generator, error) {
	if difficulty == 0 {
		return nil, ErrZeroDifficulty
	}
	return &Generator{Difficulty: difficulty, Threads: threads}, nil
}

// GenerateWork returns hex work for root, stopping when ctx is done.
func (g *Generator) GenerateWork(ctx context.Context, root []byte) (string, error) {
	if g.Difficulty == 0 {
		return "", ErrZeroDifficulty
	}
	if len(root) == 0 {
		return "", fmt.Errorf("empty work root")
	}

	threads := g.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	var (
		nonce uint64
		err   error
	)
	if threads == 1 {
		nonce, err = searchSingle(ctx, root, target(g.Difficulty))
	} else {
		nonce, err = searchParallel(ctx, root, target(g.Difficulty), threads)
	}
	if err != nil {
		return "", err
	}
	log.Engine.Debug().Hex("root", root).Uint64("nonce", nonce).Msg("Work generated")
	return encode(nonce), nil
}

// Validate checks that work meets difficulty for root.
func Validate(root []byte, work string, difficulty uint64) error {
	if difficulty == 0 {
		return ErrZeroDifficulty
	}
	nonce, err := decode(work)
	if err != nil {
		return err
	}
	buf := make([]byte, NonceSize+len(root))
	binary.LittleEndian.PutUint64(buf, nonce)
	copy(buf[NonceSize:], root)
	if !meets(buf, target(difficulty), new(big.Int)) {
		return ErrInsufficientWork
	}
	return nil
}

func meets(buf []byte, t, scratch *big.Int) bool {
	h := crypto.Hash(buf)
	scratch.SetBytes(h[:])
	return scratch.Cmp(t) <= 0
}

func encode(nonce uint64) string {
	var b [NonceSize]byte
	binary.LittleEndian.PutUint64(b[:], nonce)
	return hex.EncodeToString(b[:])
}

func decode(work string) (uint64, error) {
	b, err := hex.DecodeString(work)
	if err != nil {
		return 0, fmt.Errorf("invalid work hex: %w", err)
	}
	if len(b) != NonceSize {
		return 0, fmt.Errorf("work must be %d bytes, got %d", NonceSize, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// searchSingle scans the nonce space from zero on one goroutine.
func searchSingle(ctx context.Context, root []byte, t *big.Int) (uint64, error) {
	buf := make([]byte, NonceSize+len(root))
	copy(buf[NonceSize:], root)
	scratch := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		// Check cancellation every 65536 iterations.
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf, nonce)
		if meets(buf, t, scratch) {
			return nonce, nil
		}
		if nonce == ^uint64(0) {
			return 0, ErrExhausted
		}
	}
}

// searchParallel gives goroutine i the nonces i, i+threads, i+2*threads...
func searchParallel(ctx context.Context, root []byte, t *big.Int, threads int) (uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start, stride := uint64(i), uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, NonceSize+len(root))
			copy(buf[NonceSize:], root)
			scratch := new(big.Int)

			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf, nonce)
				if meets(buf, t, scratch) {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				// Next step would wrap past max uint64.
				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: ErrExhausted}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return 0, ErrExhausted
		}
		return r.nonce, r.err
	case <-ctx.Done():
		// A winner may have cancelled ctx just before we got here.
		select {
		case r, ok := <-found:
			if ok && r.err == nil {
				return r.nonce, nil
			}
		default:
		}
		return 0, ctx.Err()
	}
}
