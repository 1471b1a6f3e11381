// Package ids allocates structural ids for archive documents. A Policy names
// the id representation; each document scope (one screen, one blocks file)
// gets its own Allocator so uniqueness is tracked per scope.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"aiaforge/internal/aia/format"
)

// maxDraws bounds random draws per id before falling back to a counter suffix.
const maxDraws = 64

type drawFunc func(src *rand.ChaCha8, rng *rand.Rand, n int) string

var policies = map[string]drawFunc{
	format.IDSequential: func(_ *rand.ChaCha8, _ *rand.Rand, n int) string {
		return strconv.Itoa(n)
	},
	format.IDNegativeInt: func(_ *rand.ChaCha8, rng *rand.Rand, _ int) string {
		return strconv.FormatInt(-(rng.Int64N(2_000_000_000) + 1), 10)
	},
	format.IDAlnum: func(_ *rand.ChaCha8, rng *rand.Rand, _ int) string {
		const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
		b := make([]byte, 12)
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	},
	format.IDUUIDHex: func(src *rand.ChaCha8, _ *rand.Rand, _ int) string {
		u, err := uuid.NewRandomFromReader(src)
		if err != nil {
			// ChaCha8 never fails a read; keep the id well-formed anyway.
			return fmt.Sprintf("%032x", 0)
		}
		return hex.EncodeToString(u[:])
	},
}

// Names lists the supported policy names.
func Names() []string {
	return []string{format.IDSequential, format.IDNegativeInt, format.IDAlnum, format.IDUUIDHex}
}

// Policy is an id representation plus the seed every scope derives from.
type Policy struct {
	name string
	seed int64
	draw drawFunc
}

// NewPolicy returns the named policy. Equal (name, seed) pairs produce equal
// id sequences for equal scope keys.
func NewPolicy(name string, seed int64) (*Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	draw, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("ids: unknown policy %q", name)
	}
	return &Policy{name: name, seed: seed, draw: draw}, nil
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.name }

// Scope returns a fresh allocator for key. Reserved ids are never handed out.
func (p *Policy) Scope(key string, reserved ...string) *Allocator {
	sum := sha256.Sum256([]byte(strconv.FormatInt(p.seed, 10) + "\x00" + p.name + "\x00" + key))
	src := rand.NewChaCha8(sum)
	a := &Allocator{
		draw:    p.draw,
		src:     src,
		rng:     rand.New(src),
		used:    make(map[string]struct{}, len(reserved)+8),
		counter: make(map[string]int, 4),
	}
	for _, id := range reserved {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		a.used[id] = struct{}{}
	}
	return a
}

// Allocator hands out ids unique within one scope. It is not safe for
// concurrent use; each generation owns its allocators.
type Allocator struct {
	draw    drawFunc
	src     *rand.ChaCha8
	rng     *rand.Rand
	n       int
	used    map[string]struct{}
	counter map[string]int
}

// Next returns an id not previously returned or reserved in this scope.
func (a *Allocator) Next() string {
	var base string
	for range maxDraws {
		a.n++
		base = a.draw(a.src, a.rng, a.n)
		if _, exists := a.used[base]; !exists {
			a.used[base] = struct{}{}
			return base
		}
	}
	n := a.counter[base]
	if n < 1 {
		n = 1
	}
	for {
		n++
		candidate := fmt.Sprintf("%s%d", base, n)
		if _, exists := a.used[candidate]; exists {
			continue
		}
		a.used[candidate] = struct{}{}
		a.counter[base] = n
		return candidate
	}
}

// Len reports how many ids the scope holds, reserved ones included.
func (a *Allocator) Len() int { return len(a.used) }
