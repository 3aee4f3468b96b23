package tetris

import "fmt"

var pointsByRows = [...]int{0, 100, 300, 500, 800}

// Points is the score for clearing rows in a single commit. Any count outside 0..4
// means the row counting is broken, so it panics.
func Points(rows int) int {
	if rows < 0 || rows >= len(pointsByRows) {
		panic(fmt.Sprintf("tetris: unexpected number of rows cleared: %d", rows))
	}
	return pointsByRows[rows]
}
