package game

import (
	"math"
	"sync"
)

const DefaultBallTolerance = 0.1

//Reconciler keeps the last accepted ball sample of each room and decides when two
//client simulations drifted far enough to force a correction.
//It never simulates the ball itself.
type Reconciler struct {
	sync.Mutex
	tolerance float64
	recent    map[string]BallInfo
}

func NewReconciler(tolerance float64) *Reconciler {
	if tolerance <= 0 {
		tolerance = DefaultBallTolerance
	}
	return &Reconciler{
		tolerance: tolerance,
		recent:    make(map[string]BallInfo),
	}
}

//Reconcile returns the sample to broadcast, or false when no correction is needed.
//The first sample of a room is stored silently.
func (r *Reconciler) Reconcile(roomID string, ball BallInfo) (BallInfo, bool) {
	r.Lock()
	defer r.Unlock()

	recent, ok := r.recent[roomID]
	if !ok {
		r.recent[roomID] = ball
		return BallInfo{}, false
	}

	if !r.drifted(recent, ball) {
		return BallInfo{}, false
	}

	r.recent[roomID] = ball
	return ball, true
}

func (r *Reconciler) drifted(recent BallInfo, incoming BallInfo) bool {
	return math.Abs(incoming.Position.X-recent.Position.X) > r.tolerance ||
		math.Abs(incoming.Position.Y-recent.Position.Y) > r.tolerance ||
		math.Abs(incoming.Velocity.X-recent.Velocity.X) > r.tolerance ||
		math.Abs(incoming.Velocity.Y-recent.Velocity.Y) > r.tolerance
}

func (r *Reconciler) Recent(roomID string) (BallInfo, bool) {
	r.Lock()
	defer r.Unlock()
	ball, ok := r.recent[roomID]
	return ball, ok
}

func (r *Reconciler) Forget(roomID string) {
	r.Lock()
	delete(r.recent, roomID)
	r.Unlock()
}

func (r *Reconciler) Clear() {
	r.Lock()
	r.recent = make(map[string]BallInfo)
	r.Unlock()
}
