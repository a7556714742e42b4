// Package validation decides whether a click hits a difference region.
package validation

import "github.com/diffduel/internal/domain"

// Validator checks moves against a game's difference map
type Validator struct{}

// NewValidator creates a move validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns the difference containing point, skipping differences
// already found by any player.
func (v *Validator) Validate(game domain.GameData, point domain.Point, players []domain.PlayerProgress) (*domain.Difference, bool) {
	found := make(map[int]struct{})
	for _, p := range players {
		for _, d := range p.DifferencesFound {
			found[d.Index] = struct{}{}
		}
	}

	for i := range game.Differences {
		diff := game.Differences[i]
		if _, done := found[diff.Index]; done {
			continue
		}
		for _, p := range diff.Points {
			if p == point {
				return &diff, true
			}
		}
	}
	return nil, false
}
