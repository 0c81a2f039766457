package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnpong/game"
)

func ball(px, py, vx, vy float64) game.BallInfo {
	return game.BallInfo{
		Position: game.Vector{X: px, Y: py},
		Velocity: game.Vector{X: vx, Y: vy},
	}
}

func TestReconciler_FirstSampleIsSilent(t *testing.T) {
	r := game.NewReconciler(0.1)

	_, broadcast := r.Reconcile("room", ball(10, 10, 1, 1))
	assert.False(t, broadcast)

	recent, ok := r.Recent("room")
	require.True(t, ok)
	assert.Equal(t, ball(10, 10, 1, 1), recent)
}

func TestReconciler_Tolerance(t *testing.T) {
	base := ball(0, 0, 0, 0)
	tests := []struct {
		name      string
		incoming  game.BallInfo
		broadcast bool
	}{
		{"within tolerance", ball(0.05, 0, 0, 0), false},
		{"on the edge", ball(0.1, -0.1, 0.1, -0.1), false},
		{"position x drift", ball(0.2, 0, 0, 0), true},
		{"position y drift", ball(0, -0.11, 0, 0), true},
		{"velocity x drift", ball(0, 0, 0.5, 0), true},
		{"velocity y drift", ball(0, 0, 0, -3), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := game.NewReconciler(0.1)
			r.Reconcile("room", base)

			got, broadcast := r.Reconcile("room", tt.incoming)
			assert.Equal(t, tt.broadcast, broadcast)

			recent, _ := r.Recent("room")
			if tt.broadcast {
				assert.Equal(t, tt.incoming, got)
				assert.Equal(t, tt.incoming, recent)
			} else {
				assert.Equal(t, base, recent, "rejected sample must not touch the cache")
			}
		})
	}
}

func TestReconciler_RoomsAreIndependent(t *testing.T) {
	r := game.NewReconciler(0)

	r.Reconcile("a", ball(0, 0, 0, 0))
	_, broadcast := r.Reconcile("b", ball(50, 50, 0, 0))
	assert.False(t, broadcast, "first sample of another room is a baseline")

	r.Forget("a")
	_, ok := r.Recent("a")
	assert.False(t, ok)
	_, broadcast = r.Reconcile("a", ball(9, 9, 9, 9))
	assert.False(t, broadcast)
}
