package router

import (
	"context"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/protocol"
)

func (r *Router) handleAddHistory(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	record, err := protocol.Decode[domain.HistoryRecord](ev)
	if err != nil {
		return nil, err
	}

	added, err := r.history.Add(ctx, record)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, nil
	}

	records, err := r.history.List(ctx)
	if err != nil {
		return nil, err
	}
	return []Effect{toAll(protocol.MessageHistoryUpdated, records)}, nil
}

func (r *Router) handleGetHistory(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	records, err := r.history.List(ctx)
	if err != nil {
		return nil, err
	}
	return []Effect{toConnection(ev.ConnectionID, protocol.MessageHistory, records)}, nil
}

func (r *Router) handleDeleteHistory(ctx context.Context, _ protocol.Event) ([]Effect, error) {
	if err := r.history.DeleteAll(ctx); err != nil {
		return nil, err
	}
	return []Effect{toAll(protocol.MessageHistoryUpdated, []domain.HistoryRecord{})}, nil
}
