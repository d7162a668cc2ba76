// Package eventloop provides the single-threaded execution model of a
// session.
//
// All sequencing work of one session (timer expiry, participant input,
// start/resume/finalize commands) runs as callbacks on one loop goroutine.
// Two implementations of ports.Scheduler exist:
//
//   - Loop runs on the wall clock. Timers are backed by time.AfterFunc and
//     post their callbacks into the loop, so they never run concurrently with
//     other loop work. Other goroutines submit work with Post or Do.
//   - Virtual runs on a manual clock. Nothing happens until Advance or Flush
//     is called, which makes timing fully deterministic in tests and in the
//     offline simulator.
//
// Relay is the InputSource used by sessions: inputs arrive from HTTP
// handlers, are posted into the loop and fanned out to the subscribed
// response window there.
package eventloop
