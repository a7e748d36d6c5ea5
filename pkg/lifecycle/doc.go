// Package lifecycle provides the supervisor state machine and restart
// policies.
//
// A supervised process moves through Idle, Launching, Running and
// Restarting, looping between the last three for as long as the supervisor
// runs. Terminated is entered only when the supervisor itself is asked to
// stop, and is final.
//
// # Usage
//
//	manager := lifecycle.NewManager(logger, emitter)
//	policy := lifecycle.FixedDelay(3 * time.Second)
//
//	_ = manager.TransitionTo(lifecycle.StateLaunching, "watchdog started")
//	// spawn ...
//	_ = manager.TransitionTo(lifecycle.StateRunning, "spawned")
//	// wait ...
//	_ = manager.TransitionTo(lifecycle.StateRestarting, "exit code 1")
//	if delay, ok := policy.Delay(restarts); ok {
//	    time.Sleep(delay)
//	}
//
// Restart policies are independent of the state machine, so a stricter
// policy can replace the default without touching the loop.
package lifecycle
