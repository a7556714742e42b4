package router

import (
	"context"

	"github.com/diffduel/internal/protocol"
)

// handleDisconnect undoes everything a dropped connection held. Lobbies it
// created are closed for every queued candidate.
func (r *Router) handleDisconnect(_ context.Context, ev protocol.Event) ([]Effect, error) {
	conn := ev.ConnectionID
	var effects []Effect

	for _, res := range r.queue.Disconnect(conn) {
		group := lobbyGroup(res.GameID)
		if res.Closed != nil {
			r.usernames.ReleaseGame(res.GameID)
			data := protocol.LobbyData{GameID: res.GameID, Room: res.Closed.Room}
			effects = append(effects,
				toGroup(group, protocol.MessageLobbyClosed, data),
				toAll(protocol.MessageCreatorLeft, data),
				closeGroup(group),
			)
			r.logger.Info("lobby closed by creator disconnect",
				"game_id", res.GameID,
				"waiting", len(res.Closed.WaitingLine),
			)
			continue
		}

		r.usernames.Release(res.GameID, res.Quit.Removed.Username)
		effects = append(effects, leaveGroup(conn, group))
		effects = append(effects, lineChangeEffects(res.GameID, res.Quit.LineChange)...)
	}

	r.pool.Remove(conn)
	effects = append(effects, r.departureEffects(conn, r.sessions.LeaveAll(conn))...)
	r.usernames.ReleaseConnection(conn)

	return effects, nil
}
