package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper destroys rooms left without members past a grace period. Each room
// name is an independent unarmed/armed state machine: emptiness arms a timer,
// (re)occupancy disarms it, and at most one armed timer exists per room at a
// time; re-arming replaces the pending timer rather than stacking another.
//
// Expiry re-checks emptiness before destroying, because membership can change
// between arming and firing.
type Reaper struct {
	mu     sync.Mutex
	timers map[string]*armedTimer
	gen    uint64
	delay  time.Duration

	// isEmpty and destroy are supplied by the Hub: occupancy query and the
	// actual room teardown (store delete + destroyed notice).
	isEmpty func(roomName string) bool
	destroy func(roomName string)
}

// armedTimer carries a generation token so a replaced timer's late callback
// cannot fire on behalf of its successor.
type armedTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewReaper creates a disarmed reaper.
func NewReaper(delay time.Duration, isEmpty func(string) bool, destroy func(string)) *Reaper {
	if isEmpty == nil || destroy == nil {
		panic("isEmpty and destroy callbacks cannot be nil for Reaper")
	}
	return &Reaper{
		timers:  make(map[string]*armedTimer),
		delay:   delay,
		isEmpty: isEmpty,
		destroy: destroy,
	}
}

// RoomEmptied arms the destruction timer for roomName. An already armed timer
// is replaced, restarting the grace period.
func (r *Reaper) RoomEmptied(roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if armed, ok := r.timers[roomName]; ok {
		armed.timer.Stop()
	}
	r.gen++
	gen := r.gen
	logrus.WithFields(logrus.Fields{"room": roomName, "delay": r.delay}).
		Info("Room empty, destruction timer armed")
	r.timers[roomName] = &armedTimer{
		timer: time.AfterFunc(r.delay, func() { r.expire(roomName, gen) }),
		gen:   gen,
	}
}

// RoomOccupied disarms any pending timer for roomName.
func (r *Reaper) RoomOccupied(roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if armed, ok := r.timers[roomName]; ok {
		armed.timer.Stop()
		delete(r.timers, roomName)
		logrus.WithField("room", roomName).Info("Room reoccupied, destruction timer disarmed")
	}
}

// Cancel disarms any pending timer for roomName without implying occupancy.
// Used by the manual close path, which destroys immediately.
func (r *Reaper) Cancel(roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if armed, ok := r.timers[roomName]; ok {
		armed.timer.Stop()
		delete(r.timers, roomName)
	}
}

// Armed reports whether a destruction timer is pending for roomName.
func (r *Reaper) Armed(roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[roomName]
	return ok
}

// Stop disarms every pending timer. Used at shutdown; rooms left behind are
// picked up by the stale-room sweep on a later run.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomName, armed := range r.timers {
		armed.timer.Stop()
		delete(r.timers, roomName)
	}
}

func (r *Reaper) expire(roomName string, gen uint64) {
	r.mu.Lock()
	armed, ok := r.timers[roomName]
	if !ok || armed.gen != gen {
		// Disarmed or replaced between firing and acquiring the lock.
		r.mu.Unlock()
		return
	}
	delete(r.timers, roomName)
	r.mu.Unlock()

	if !r.isEmpty(roomName) {
		logrus.WithField("room", roomName).Info("Destruction timer fired but room reoccupied, disarmed")
		return
	}
	logrus.WithField("room", roomName).Info("Room empty past grace period, destroying")
	r.destroy(roomName)
}
