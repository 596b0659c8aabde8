// Package concurrent provides the small process-lifecycle helper referenced
// by Comcast-tr1d1um's tr1d1um.go as concurrent.Await(server, signals). The
// concurrent package itself was not part of the retrieved pack, so this is
// a from-scratch implementation of the documented call shape: run a set of
// goroutines, and return once either the first of them returns or an OS
// signal arrives.
package concurrent

import (
	"os"
)

// Runnable is anything with a blocking Run method, such as an http.Server
// wrapped to satisfy this interface.
type Runnable interface {
	Run() error
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func() error

// Run implements Runnable.
func (f RunnableFunc) Run() error { return f() }

// Await runs each Runnable in its own goroutine and blocks until either the
// first one returns or a signal is received on signals. If a task returns
// first, its error (nil if it returned nil) is returned; the other tasks
// are left running. If a signal arrives first, Await returns nil.
func Await(signals chan os.Signal, tasks ...Runnable) error {
	done := make(chan error, len(tasks))
	for _, t := range tasks {
		t := t
		go func() {
			done <- t.Run()
		}()
	}

	select {
	case err := <-done:
		return err
	case <-signals:
		return nil
	}
}
