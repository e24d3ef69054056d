package relay

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	// codeAlphabet leaves out glyphs that are easy to misread (0/O, 1/I/L, 5/S).
	codeAlphabet = "ABCDEFGHJKMNPQRTUVWXYZ2346789"
	codeLength   = 4
)

// CodeGenerator produces candidate room codes. Codes need not be unique;
// the registry retries until it draws one that is not live.
type CodeGenerator interface {
	Next() string
}

func newRandomCodeGenerator() CodeGenerator {
	return &randomCodeGenerator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type randomCodeGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (g *randomCodeGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[g.rng.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// normalizeCode maps client input onto the stored form of a room code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
