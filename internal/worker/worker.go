// Package worker reconstructs the small goroutine-lifecycle base type that
// the teacher's tree embeds throughout (client2.connection, the root
// disk.go StateWriter, map/client.Stream, sockatz/common.QUICProxyConn):
// a zero-value-safe Worker offering Go(fn), HaltCh(), and Halt(). Its
// defining file (katzenpost/core/worker) was not present in the retrieval
// pack, so it is rebuilt here to the exact call shape the rest of this
// module already relies on.
package worker

import "sync"

// Worker tracks goroutines started with Go and provides cooperative
// cancellation via HaltCh/Halt. The zero value is ready to use; embed it by
// value, as the teacher does.
type Worker struct {
	initOnce sync.Once
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// Go starts fn in its own goroutine, tracked so Halt can wait for it.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// HaltCh returns the channel that closes when Halt is called. Goroutines
// started with Go should select on it to learn when to stop.
func (w *Worker) HaltCh() chan struct{} {
	w.init()
	return w.haltCh
}

// Halt closes HaltCh (idempotently) and blocks until every goroutine
// started with Go has returned.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
	w.wg.Wait()
}
