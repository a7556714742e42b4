package router

import (
	"context"
	"fmt"

	"github.com/diffduel/internal/protocol"
	"github.com/diffduel/internal/ranking"
)

func (r *Router) handleSubmitScore(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.SubmitScorePayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}

	record, err := r.rankings.GameExists(ctx, p.GameID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		r.logger.Debug("score for unknown game dropped", "game_id", p.GameID, "username", p.Score.Username)
		return nil, nil
	}

	top, rank, err := r.rankings.UpdateRanking(ctx, p.GameID, p.Mode, p.Score)
	if err != nil {
		return nil, err
	}

	effects := []Effect{toAll(protocol.MessageNewRecord, protocol.NewRecordData{
		GameID:   p.GameID,
		GameName: p.GameName,
		Mode:     p.Mode,
		Score:    p.Score,
		Rank:     rank,
		Scores:   top,
	})}
	if rank != ranking.NotRanked {
		name := p.GameName
		if name == "" {
			name = p.GameID
		}
		effects = append(effects, toAll(protocol.MessageChat, protocol.ChatData{
			System:  true,
			Message: fmt.Sprintf("%s takes place %d in %s on %s", p.Score.Username, rank, p.Mode.Label(), name),
		}))
	}
	return effects, nil
}

func (r *Router) handleGetScores(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.ScoresQueryPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}

	top, err := r.rankings.GetScores(ctx, p.GameID, p.Mode)
	if err != nil {
		return ignoreAbsent(err)
	}
	return []Effect{toConnection(ev.ConnectionID, protocol.MessageScores, protocol.ScoresData{
		GameID: p.GameID,
		Mode:   p.Mode,
		Scores: top,
	})}, nil
}

func (r *Router) handleGetAllScores(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	records, err := r.rankings.AllScores(ctx)
	if err != nil {
		return nil, err
	}
	return []Effect{toConnection(ev.ConnectionID, protocol.MessageAllScores, records)}, nil
}

func (r *Router) handleResetGameScores(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.LobbyPayload](ev)
	if err != nil {
		return nil, err
	}

	record, err := r.rankings.ResetGameScores(ctx, p.GameID)
	if err != nil {
		return ignoreAbsent(err)
	}
	return []Effect{toAll(protocol.MessageScoresReset, record)}, nil
}

func (r *Router) handleResetAllScores(ctx context.Context, _ protocol.Event) ([]Effect, error) {
	records, err := r.rankings.ResetAll(ctx)
	if err != nil {
		return nil, err
	}
	return []Effect{toAll(protocol.MessageAllScores, records)}, nil
}
