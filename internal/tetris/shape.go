package tetris

import "strings"

// Shape is one orientation of a piece: a boolean occupancy matrix, row 0 on top.
type Shape [][]bool

var catalog = map[Block]Shape{
	I: {
		{false, false, false, false},
		{true, true, true, true},
		{false, false, false, false},
		{false, false, false, false},
	},
	J: {
		{true, false, false},
		{true, true, true},
		{false, false, false},
	},
	L: {
		{false, false, true},
		{true, true, true},
		{false, false, false},
	},
	O: {
		{true, true},
		{true, true},
	},
	S: {
		{false, true, true},
		{true, true, false},
		{false, false, false},
	},
	T: {
		{false, true, false},
		{true, true, true},
		{false, false, false},
	},
	Z: {
		{true, true, false},
		{false, true, true},
		{false, false, false},
	},
}

// ShapeOf returns a fresh copy of the base orientation of kind.
// Empty and unknown kinds have no shape.
func ShapeOf(kind Block) Shape {
	return catalog[kind].Clone()
}

func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	for r := range s {
		out[r] = append([]bool(nil), s[r]...)
	}
	return out
}

// Rotate returns s turned 90° clockwise: cell (r, c) moves to (c, rows-1-r).
// The input is not modified.
func Rotate(s Shape) Shape {
	rows := len(s)
	if rows == 0 {
		return Shape{}
	}
	cols := len(s[0])

	rotated := make(Shape, cols)
	for c := range rotated {
		rotated[c] = make([]bool, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			rotated[c][rows-1-r] = s[r][c]
		}
	}
	return rotated
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if len(s[r]) != len(other[r]) {
			return false
		}
		for c := range s[r] {
			if s[r][c] != other[r][c] {
				return false
			}
		}
	}
	return true
}

// Cells calls fn for every filled cell with its offset inside the shape.
func (s Shape) Cells(fn func(dr, dc int)) {
	for r, row := range s {
		for c, set := range row {
			if set {
				fn(r, c)
			}
		}
	}
}

func (s Shape) String() string {
	var sb strings.Builder
	for r, row := range s {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for _, set := range row {
			if set {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
	}
	return sb.String()
}
