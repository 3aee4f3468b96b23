package tetris

import (
	"fmt"
	"math/rand/v2"
)

// Block is the content of one board cell: Empty or the kind of a settled piece.
type Block uint8

const (
	Empty Block = iota
	I
	J
	L
	O
	S
	T
	Z
)

// Kinds lists every block kind a piece can have, in catalog order.
var Kinds = []Block{I, J, L, O, S, T, Z}

var blockNames = [...]string{
	Empty: ".",
	I:     "I",
	J:     "J",
	L:     "L",
	O:     "O",
	S:     "S",
	T:     "T",
	Z:     "Z",
}

func (b Block) String() string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return fmt.Sprintf("Block(%d)", uint8(b))
}

// Valid reports whether b is Empty or one of Kinds.
func (b Block) Valid() bool {
	return b <= Z
}

// ParseBlock is the inverse of Block.String.
func ParseBlock(s string) (Block, error) {
	for i, name := range blockNames {
		if name == s {
			return Block(i), nil
		}
	}
	return Empty, fmt.Errorf("unknown block %q", s)
}

func (b Block) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid block %d", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *Block) UnmarshalText(text []byte) error {
	v, err := ParseBlock(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// RandomBlock draws a kind uniformly from Kinds. A nil r uses the global source.
func RandomBlock(r *rand.Rand) Block {
	if r == nil {
		return Kinds[rand.IntN(len(Kinds))]
	}
	return Kinds[r.IntN(len(Kinds))]
}
