package tetris

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	Width         = 20
	DefaultHeight = 20

	SpawnRow    = 0
	SpawnColumn = 3
)

// Board is a fixed-size grid of cells, row 0 on top. Every row is Width wide.
type Board [][]Block

// EmptyBoard returns a board of the given height with every cell Empty.
// A height below zero is treated as zero.
func EmptyBoard(height int) Board {
	if height < 0 {
		height = 0
	}
	b := make(Board, height)
	for r := range b {
		b[r] = make([]Block, Width)
	}
	return b
}

func (b Board) Height() int { return len(b) }

func (b Board) Clone() Board {
	if b == nil {
		return nil
	}
	out := make(Board, len(b))
	for r := range b {
		out[r] = append([]Block(nil), b[r]...)
	}
	return out
}

func (b Board) inside(row, col int) bool {
	return row >= 0 && row < len(b) && col >= 0 && col < Width
}

// HasCollision reports whether placing shape with its top-left corner at (row, column)
// puts any filled cell outside the board or onto a non-empty cell.
func HasCollision(b Board, shape Shape, row, column int) bool {
	for dr, cells := range shape {
		for dc, set := range cells {
			if !set {
				continue
			}
			r, c := row+dr, column+dc
			if !b.inside(r, c) || b[r][c] != Empty {
				return true
			}
		}
	}
	return false
}

// Stamp writes kind into every board cell covered by a filled cell of shape.
// It does not check for collisions; cells that land outside the board are skipped.
func Stamp(b Board, kind Block, shape Shape, row, column int) {
	shape.Cells(func(dr, dc int) {
		r, c := row+dr, column+dc
		if b.inside(r, c) {
			b[r][c] = kind
		}
	})
}

func rowFull(row []Block) bool {
	for _, cell := range row {
		if cell == Empty {
			return false
		}
	}
	return true
}

// ClearFullRows removes every full row and pads the top with the same number of
// empty rows. The input board is left untouched.
func ClearFullRows(b Board) (Board, int) {
	kept := b.Clone()
	cleared := 0
	// bottom-up so a splice never shifts a row we have not visited yet
	for r := len(kept) - 1; r >= 0; r-- {
		if rowFull(kept[r]) {
			kept = append(kept[:r], kept[r+1:]...)
			cleared++
		}
	}
	return append(EmptyBoard(cleared), kept...), cleared
}

// PadTop prepends empty rows until b is height rows tall.
func PadTop(b Board, height int) Board {
	if len(b) >= height {
		return b
	}
	return append(EmptyBoard(height-len(b)), b...)
}

func (b Board) String() string {
	var sb strings.Builder
	for r, row := range b {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for _, cell := range row {
			sb.WriteString(cell.String())
		}
	}
	return sb.String()
}

// MarshalJSON encodes each row as a string of block letters ("." for empty).
func (b Board) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	rows := make([]string, len(b))
	for r, row := range b {
		var sb strings.Builder
		for _, cell := range row {
			if !cell.Valid() {
				return nil, fmt.Errorf("row %d: invalid block %d", r, uint8(cell))
			}
			sb.WriteString(cell.String())
		}
		rows[r] = sb.String()
	}
	return json.Marshal(rows)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows []string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if rows == nil {
		*b = nil
		return nil
	}
	out := make(Board, len(rows))
	for r, s := range rows {
		if len(s) != Width {
			return fmt.Errorf("row %d: width %d, want %d", r, len(s), Width)
		}
		out[r] = make([]Block, Width)
		for c := 0; c < len(s); c++ {
			cell, err := ParseBlock(s[c : c+1])
			if err != nil {
				return fmt.Errorf("row %d: %w", r, err)
			}
			out[r][c] = cell
		}
	}
	*b = out
	return nil
}
