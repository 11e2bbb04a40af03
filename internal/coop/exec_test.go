package coop

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunSerializes(t *testing.T) {
	var e Exec
	var inside atomic.Int32
	var overlap atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(func() {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
			})
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Fatal("two Run bodies executed at the same time")
	}
}

func TestAwaitLetsOthersIn(t *testing.T) {
	var e Exec
	release := make(chan struct{})
	awaiting := make(chan struct{})
	entered := make(chan struct{})

	go e.Run(func() {
		_ = e.Await(func() error {
			close(awaiting)
			<-release
			return nil
		})
	})

	<-awaiting
	go e.Run(func() { close(entered) })

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked while another holder was awaiting")
	}
	close(release)
}

func TestAwaitReturnsError(t *testing.T) {
	var e Exec
	want := errors.New("boom")
	var got error
	e.Run(func() {
		got = e.Await(func() error { return want })
	})
	if !errors.Is(got, want) {
		t.Errorf("Await() = %v, want %v", got, want)
	}
}

func TestGoRunsDoneInsideContext(t *testing.T) {
	var e Exec
	var wg sync.WaitGroup
	var result int

	e.Run(func() {
		Go(&e, &wg, func() (int, error) { return 42, nil }, func(v int, err error) {
			result = v
		})
	})
	wg.Wait()

	e.Run(func() {
		if result != 42 {
			t.Errorf("result = %d, want 42", result)
		}
	})
}
