package router

import "github.com/diffduel/internal/protocol"

// Op is what an effect does on the transport
type Op int

const (
	OpSend Op = iota
	OpJoinGroup
	OpLeaveGroup
	OpCloseGroup
)

// Scope selects the recipients of a send
type Scope int

const (
	ScopeConnection Scope = iota
	ScopeGroup
	ScopeAll
)

// Effect is one outbound action computed by a handler
type Effect struct {
	Op           Op
	Scope        Scope
	ConnectionID string
	Group        string
	Except       string
	Message      protocol.Message
}

// Broadcaster delivers effects to connected clients
type Broadcaster interface {
	SendToConnection(connectionID string, msg protocol.Message)
	SendToGroup(group, exceptConnectionID string, msg protocol.Message)
	SendToAll(msg protocol.Message)
	JoinGroup(connectionID, group string)
	LeaveGroup(connectionID, group string)
	CloseGroup(group string)
}

func toConnection(connectionID string, t protocol.MessageType, data interface{}) Effect {
	return Effect{Op: OpSend, Scope: ScopeConnection, ConnectionID: connectionID, Message: protocol.NewMessage(t, data)}
}

func toGroup(group string, t protocol.MessageType, data interface{}) Effect {
	return Effect{Op: OpSend, Scope: ScopeGroup, Group: group, Message: protocol.NewMessage(t, data)}
}

func toGroupExcept(group, except string, t protocol.MessageType, data interface{}) Effect {
	e := toGroup(group, t, data)
	e.Except = except
	return e
}

func toAll(t protocol.MessageType, data interface{}) Effect {
	return Effect{Op: OpSend, Scope: ScopeAll, Message: protocol.NewMessage(t, data)}
}

func joinGroup(connectionID, group string) Effect {
	return Effect{Op: OpJoinGroup, ConnectionID: connectionID, Group: group}
}

func leaveGroup(connectionID, group string) Effect {
	return Effect{Op: OpLeaveGroup, ConnectionID: connectionID, Group: group}
}

func closeGroup(group string) Effect {
	return Effect{Op: OpCloseGroup, Group: group}
}

// Deliver hands effects to a broadcaster in order
func Deliver(b Broadcaster, effects []Effect) {
	for _, e := range effects {
		switch e.Op {
		case OpSend:
			switch e.Scope {
			case ScopeConnection:
				b.SendToConnection(e.ConnectionID, e.Message)
			case ScopeGroup:
				b.SendToGroup(e.Group, e.Except, e.Message)
			case ScopeAll:
				b.SendToAll(e.Message)
			}
		case OpJoinGroup:
			b.JoinGroup(e.ConnectionID, e.Group)
		case OpLeaveGroup:
			b.LeaveGroup(e.ConnectionID, e.Group)
		case OpCloseGroup:
			b.CloseGroup(e.Group)
		}
	}
}
