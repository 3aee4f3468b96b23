package tetris

// Drop is the piece one participant is currently steering.
type Drop struct {
	Block  Block `json:"block"`
	Shape  Shape `json:"shape"`
	Row    int   `json:"row"`
	Column int   `json:"column"`
}

// SpawnDrop places a fresh piece of kind at the spawn position.
func SpawnDrop(kind Block) Drop {
	return Drop{
		Block:  kind,
		Shape:  ShapeOf(kind),
		Row:    SpawnRow,
		Column: SpawnColumn,
	}
}

func (d Drop) Clone() Drop {
	d.Shape = d.Shape.Clone()
	return d
}

// Collides reports whether d, shifted by (dRow, dColumn), would hit b.
func (d Drop) Collides(b Board, dRow, dColumn int) bool {
	return HasCollision(b, d.Shape, d.Row+dRow, d.Column+dColumn)
}

// Composite stamps every drop onto a copy of b. Overlapping drops are drawn in order.
func Composite(b Board, drops ...Drop) Board {
	out := b.Clone()
	for _, d := range drops {
		Stamp(out, d.Block, d.Shape, d.Row, d.Column)
	}
	return out
}
