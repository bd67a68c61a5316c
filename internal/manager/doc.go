// Package manager is the orchestrator between devices, browsers, storage and
// the timer.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                   Manager (manager.go)                    │
//	│  One goroutine (Run) handles every input to completion    │
//	│                                                           │
//	│   DevicePilot.Events ──┐                                  │
//	│   BrowserPilot.Requests├──▶ handler ──▶ 1. store write    │
//	│   timer.Fired ─────────┘                2. cache mutation │
//	│                                         3. broadcast      │
//	└──────────────────────────────────────────────────────────┘
//
// A handler never mutates the cache or notifies browsers before the store has
// accepted the write. A failed write leaves both untouched.
//
// # Schedules
//
// Adding a schedule registers a start job and a stop job with the timer. The
// jobs carry a reference to the owner and the schedule, not the schedule
// itself, so a firing always acts on current cache state. A firing whose job
// id no longer matches the schedule's handle is stale and is dropped.
//
// # Thread Safety
//
// Manageables are only mutated on the Run goroutine. The cache may be read
// from anywhere.
//
// # Usage
//
//	mgr := manager.New(manager.Deps{
//	    Cache:    c,
//	    Devices:  store.NewDeviceProvider(db),
//	    Groups:   store.NewGroupProvider(db),
//	    Channel:  devicePilot,
//	    Browsers: browserPilot,
//	    Timer:    timers,
//	    Events:   devicePilot.Events(),
//	    Requests: browserPilot.Requests(),
//	    Fired:    timers.Fired(),
//	})
//	if err := mgr.Load(ctx); err != nil {
//	    return err
//	}
//	go mgr.Run(ctx)
package manager
