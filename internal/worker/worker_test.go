package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHaltWaitsForGoroutines(t *testing.T) {
	var w Worker
	started := make(chan struct{})
	finished := make(chan struct{})
	w.Go(func() {
		close(started)
		<-w.HaltCh()
		time.Sleep(10 * time.Millisecond)
		close(finished)
	})
	<-started
	w.Halt()
	select {
	case <-finished:
	default:
		t.Fatal("Halt returned before goroutine finished")
	}
}

func TestHaltIdempotent(t *testing.T) {
	var w Worker
	require.NotPanics(t, func() {
		w.Halt()
		w.Halt()
	})
}

func TestZeroValueEmbeddable(t *testing.T) {
	type thing struct {
		Worker
	}
	var th thing
	done := make(chan struct{})
	th.Go(func() { close(done) })
	<-done
	th.Halt()
}
