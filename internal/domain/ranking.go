package domain

// RankingSize is the number of slots kept per leaderboard
const RankingSize = 3

// UsersScore is one leaderboard slot. Lower times rank higher.
type UsersScore struct {
	Username string `json:"username"`
	Time     int    `json:"time"`
}

// Top3 is an ascending, fixed-size leaderboard
type Top3 [RankingSize]UsersScore

// RankingRecord holds both leaderboards of a game
type RankingRecord struct {
	GameID       string `json:"gameId"`
	SinglePlayer Top3   `json:"singlePlayer"`
	MultiPlayer  Top3   `json:"multiPlayer"`
}

// Scores returns the leaderboard for a play mode
func (r *RankingRecord) Scores(mode PlayMode) (Top3, error) {
	switch mode {
	case SinglePlayer:
		return r.SinglePlayer, nil
	case MultiPlayer:
		return r.MultiPlayer, nil
	default:
		return Top3{}, mode.Validate()
	}
}

// SetScores replaces the leaderboard for a play mode
func (r *RankingRecord) SetScores(mode PlayMode, top Top3) error {
	switch mode {
	case SinglePlayer:
		r.SinglePlayer = top
	case MultiPlayer:
		r.MultiPlayer = top
	default:
		return mode.Validate()
	}
	return nil
}
