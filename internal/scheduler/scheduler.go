// Package scheduler runs the per-tick phase/stage pipeline over a
// world.World: PreEvent, Main, PostEvent, each split into First and Update
// stages, with systems inside a stage run concurrently when their declared
// component access sets are disjoint. The tick loop itself is adapted from
// the teacher's per-room actor loop (one command channel drained by one
// goroutine, panic-recovery around each unit of work), generalized from
// "one room, one command at a time" to "one world, one tick at a time".
package scheduler

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is one of the three ordered passes a tick makes.
type Phase int

const (
	PreEvent Phase = iota
	Main
	PostEvent
)

func (p Phase) String() string {
	switch p {
	case PreEvent:
		return "PreEvent"
	case Main:
		return "Main"
	case PostEvent:
		return "PostEvent"
	default:
		return "unknown"
	}
}

// Stage orders systems within a Phase.
type Stage int

const (
	First Stage = iota
	Update
)

func (s Stage) String() string {
	if s == First {
		return "First"
	}
	return "Update"
}

// Access declares which component types a system reads and writes. Two
// systems can run concurrently only if neither's Writes set intersects
// the other's Reads or Writes set.
type Access struct {
	Reads  []reflect.Type
	Writes []reflect.Type
	// Exclusive systems require full world access and run alone in their
	// own wave, ahead of or behind every other system in the stage.
	Exclusive bool
}

// System is one unit of per-tick work registered under a Phase and Stage.
type System struct {
	Name   string
	Phase  Phase
	Stage  Stage
	Access Access
	Run    func()
}

// Scheduler holds the registered systems and runs them in phase/stage
// order, batching disjoint-write systems within a stage into waves.
type Scheduler struct {
	logger  *zap.Logger
	systems map[Phase]map[Stage][]System
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		systems: map[Phase]map[Stage][]System{
			PreEvent:  {First: nil, Update: nil},
			Main:      {First: nil, Update: nil},
			PostEvent: {First: nil, Update: nil},
		},
	}
}

// Register adds a system to run every tick in the given phase and stage.
// Order among systems registered for the same phase/stage is preserved
// within each wave the partitioner produces.
func (s *Scheduler) Register(sys System) {
	s.systems[sys.Phase][sys.Stage] = append(s.systems[sys.Phase][sys.Stage], sys)
}

// RunTick executes PreEvent, Main, PostEvent in order, each phase's First
// stage before its Update stage. A panic inside any system is recovered
// and returned as an error rather than allowed to reach the caller,
// matching the "a panic in any task terminates only that task" policy —
// the tick loop itself is the task, and the caller decides whether a
// failed tick is fatal to the engine.
func (s *Scheduler) RunTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	for _, phase := range []Phase{PreEvent, Main, PostEvent} {
		for _, stage := range []Stage{First, Update} {
			s.runStage(phase, stage)
		}
	}
	return nil
}

func (s *Scheduler) runStage(phase Phase, stage Stage) {
	for _, wave := range partition(s.systems[phase][stage]) {
		if len(wave) == 1 {
			runOne(wave[0])
			continue
		}
		var wg sync.WaitGroup
		wg.Add(len(wave))
		for _, sys := range wave {
			sys := sys
			go func() {
				defer wg.Done()
				runOne(sys)
			}()
		}
		wg.Wait()
	}
}

func runOne(sys System) {
	sys.Run()
}

// partition splits systems, in registration order, into waves such that
// no two systems sharing a wave have overlapping write/read-write access.
// Exclusive systems always start a new wave of size one.
func partition(systems []System) [][]System {
	var waves [][]System
	for _, sys := range systems {
		if sys.Access.Exclusive {
			waves = append(waves, []System{sys})
			continue
		}
		placed := false
		for i := range waves {
			if waves[i][0].Access.Exclusive {
				continue
			}
			if fitsWave(waves[i], sys) {
				waves[i] = append(waves[i], sys)
				placed = true
				break
			}
		}
		if !placed {
			waves = append(waves, []System{sys})
		}
	}
	return waves
}

func fitsWave(wave []System, sys System) bool {
	for _, other := range wave {
		if conflicts(other.Access, sys.Access) {
			return false
		}
	}
	return true
}

func conflicts(a, b Access) bool {
	return setsOverlap(a.Writes, b.Writes) ||
		setsOverlap(a.Writes, b.Reads) ||
		setsOverlap(a.Reads, b.Writes)
}

func setsOverlap(a, b []reflect.Type) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[reflect.Type]struct{}, len(a))
	for _, t := range a {
		seen[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := seen[t]; ok {
			return true
		}
	}
	return false
}

// TypesOf is a small helper for building an Access's Reads/Writes list
// from component value types, e.g. scheduler.TypesOf[world.Room]().
func TypesOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

// Clock drives RunTick at a fixed cadence, never dropping or coalescing a
// tick: the next tick is scheduled relative to when the previous one
// finished, so a tick that runs long simply delays the next one.
type Clock struct {
	Interval time.Duration
}

// Run calls RunTick on the scheduler every Interval until stop is closed
// or RunTick returns a fatal error (fatal is decided by onTick's return).
// onTick receives any error from RunTick; returning true from onTick
// requests the loop stop.
func (c Clock) Run(stop <-chan struct{}, tick func() error, onTick func(err error) (stopLoop bool)) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		start := time.Now()
		err := tick()
		if onTick(err) {
			return
		}
		elapsed := time.Since(start)
		if elapsed < c.Interval {
			select {
			case <-time.After(c.Interval - elapsed):
			case <-stop:
				return
			}
		}
	}
}
