package game

import (
	"encoding/json"
	"fmt"

	"tetris_together/internal/tetris"
)

// BoardState is the replicated state behind the board reducer.
type BoardState struct {
	Board tetris.Board
}

// BoardAction is one of StartAction or CommitAction.
type BoardAction interface {
	boardAction()
	Absorbs() bool
}

// StartAction replaces the board with an empty one.
type StartAction struct {
	Height int
}

// CommitAction carries the board computed by the committing replica and the
// block it spawns next.
type CommitAction struct {
	Board    tetris.Board
	NewBlock tetris.Block
}

func (StartAction) boardAction()  {}
func (CommitAction) boardAction() {}

// Both actions carry the whole board, so earlier ones never need replaying.
func (StartAction) Absorbs() bool  { return true }
func (CommitAction) Absorbs() bool { return true }

func boardReducer(s BoardState, a BoardAction) BoardState {
	switch a := a.(type) {
	case StartAction:
		h := a.Height
		if h <= 0 {
			h = tetris.DefaultHeight
		}
		return BoardState{Board: tetris.EmptyBoard(h)}
	case CommitAction:
		h := s.Board.Height()
		if h == 0 {
			h = tetris.DefaultHeight
		}
		return BoardState{Board: tetris.PadTop(a.Board.Clone(), h)}
	default:
		panic(fmt.Sprintf("game: unhandled board action %T", a))
	}
}

type wireAction struct {
	Type     string       `json:"type"`
	Height   int          `json:"height,omitempty"`
	Board    tetris.Board `json:"board,omitempty"`
	NewBlock tetris.Block `json:"newBlock,omitempty"`
}

// boardCodec writes actions as {"type": "start" | "commit", ...}.
type boardCodec struct{}

func (boardCodec) Encode(a BoardAction) ([]byte, error) {
	switch a := a.(type) {
	case StartAction:
		return json.Marshal(wireAction{Type: "start", Height: a.Height})
	case CommitAction:
		return json.Marshal(wireAction{Type: "commit", Board: a.Board, NewBlock: a.NewBlock})
	}
	return nil, fmt.Errorf("game: cannot encode board action %T", a)
}

func (boardCodec) Decode(data []byte) (BoardAction, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "start":
		return StartAction{Height: w.Height}, nil
	case "commit":
		if w.Board == nil {
			return nil, fmt.Errorf("game: commit action without board")
		}
		return CommitAction{Board: w.Board, NewBlock: w.NewBlock}, nil
	}
	return nil, fmt.Errorf("game: unknown board action %q", w.Type)
}
