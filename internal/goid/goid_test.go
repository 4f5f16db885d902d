package goid

import (
	"sync"
	"testing"
)

func TestCurrent_NonZeroAndStable(t *testing.T) {
	id := Current()
	if id == 0 {
		t.Fatal("could not parse goroutine id")
	}
	if again := Current(); again != id {
		t.Fatalf("id changed within one goroutine: %d then %d", id, again)
	}
}

func TestCurrent_DiffersAcrossGoroutines(t *testing.T) {
	id := Current()

	var other uint64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = Current()
	}()
	wg.Wait()

	if other == 0 || other == id {
		t.Fatalf("expected a distinct id, got %d (main %d)", other, id)
	}
}
