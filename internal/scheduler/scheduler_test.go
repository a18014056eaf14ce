package scheduler

import (
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type compA struct{}
type compB struct{}

func TestRunTickOrdersPhasesStrictly(t *testing.T) {
	s := New(zap.NewNop())
	var order []string
	record := func(name string) func() {
		return func() { order = append(order, name) }
	}
	s.Register(System{Name: "pre-first", Phase: PreEvent, Stage: First, Run: record("pre-first")})
	s.Register(System{Name: "pre-update", Phase: PreEvent, Stage: Update, Run: record("pre-update")})
	s.Register(System{Name: "main-first", Phase: Main, Stage: First, Run: record("main-first")})
	s.Register(System{Name: "post-update", Phase: PostEvent, Stage: Update, Run: record("post-update")})

	if err := s.RunTick(); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	want := []string{"pre-first", "pre-update", "main-first", "post-update"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunTickRecoversPanic(t *testing.T) {
	s := New(zap.NewNop())
	s.Register(System{Name: "boom", Phase: Main, Stage: First, Run: func() { panic("boom") }})
	if err := s.RunTick(); err == nil {
		t.Fatal("RunTick did not return an error for a panicking system")
	}
}

func TestDisjointWriteSystemsRunConcurrently(t *testing.T) {
	s := New(zap.NewNop())
	var concurrent int32
	var maxConcurrent int32
	track := func() {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
	}
	s.Register(System{
		Name:   "writes-a",
		Phase:  Main, Stage: First,
		Access: Access{Writes: []reflect.Type{TypesOf[compA]()}},
		Run:    track,
	})
	s.Register(System{
		Name:   "writes-b",
		Phase:  Main, Stage: First,
		Access: Access{Writes: []reflect.Type{TypesOf[compB]()}},
		Run:    track,
	})
	if err := s.RunTick(); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	if atomic.LoadInt32(&maxConcurrent) < 2 {
		t.Fatalf("disjoint-write systems did not run concurrently, max observed = %d", maxConcurrent)
	}
}
