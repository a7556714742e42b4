package domain

import "time"

// HistoryPlayer is one side of a finished game
type HistoryPlayer struct {
	Name      string `json:"name"`
	IsWinner  bool   `json:"isWinner"`
	IsQuitter bool   `json:"isQuitter"`
}

// HistoryRecord describes a finished game
type HistoryRecord struct {
	ID       int64         `json:"id,omitempty"`
	Date     time.Time     `json:"date"`
	Duration int           `json:"duration"`
	Mode     string        `json:"mode"`
	Player1  HistoryPlayer `json:"player1"`
	Player2  HistoryPlayer `json:"player2"`
}

// SameGame reports whether two records describe the same submission
func (h HistoryRecord) SameGame(other HistoryRecord) bool {
	return h.Date.Equal(other.Date) && h.Duration == other.Duration && h.Mode == other.Mode
}
