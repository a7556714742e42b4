package domain

import "fmt"

// TimerMode selects how a session clock moves
type TimerMode string

const (
	// ModeClassic counts elapsed time upwards.
	ModeClassic TimerMode = "classic"
	// ModeTimed counts remaining time downwards.
	ModeTimed TimerMode = "timed"
)

// Validate rejects anything but the known timer modes
func (m TimerMode) Validate() error {
	switch m {
	case ModeClassic, ModeTimed:
		return nil
	default:
		return fmt.Errorf("%w: timer mode %q", ErrUnknownMode, string(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *TimerMode) UnmarshalText(text []byte) error {
	mode := TimerMode(text)
	if err := mode.Validate(); err != nil {
		return err
	}
	*m = mode
	return nil
}

// PlayMode selects which leaderboard a score belongs to
type PlayMode string

const (
	SinglePlayer PlayMode = "single"
	MultiPlayer  PlayMode = "multi"
)

// Validate rejects anything but the known play modes
func (m PlayMode) Validate() error {
	switch m {
	case SinglePlayer, MultiPlayer:
		return nil
	default:
		return fmt.Errorf("%w: play mode %q", ErrUnknownMode, string(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *PlayMode) UnmarshalText(text []byte) error {
	mode := PlayMode(text)
	if err := mode.Validate(); err != nil {
		return err
	}
	*m = mode
	return nil
}

// Label returns the human readable leaderboard name
func (m PlayMode) Label() string {
	switch m {
	case SinglePlayer:
		return "single player"
	case MultiPlayer:
		return "multiplayer"
	default:
		return string(m)
	}
}
