// Package manageable defines the entities that can be scheduled and audited:
// recording devices and groups of devices.
//
// Both variants embed Entity, which owns the identity, the schedule set and
// the history. Type-specific fields live on Device and Group; callers switch
// on the concrete type when they need them.
//
// # Key Types
//
//   - Manageable: interface satisfied by *Device and *Group
//   - Entity: shared identity, schedules and history
//   - Schedule: a recording window, optionally recurring daily or weekly
//   - Historic: one audit entry in an entity's history
//
// # Scheduling Rules
//
// Two schedules conflict when their first occurrences overlap, or, when at
// least one recurs, when their recurrence windows overlap and their per-weekday
// occupied time ranges intersect. See Conflicts.
//
//	a := &manageable.Schedule{BeginDate: t, Duration: time.Hour}
//	b := &manageable.Schedule{BeginDate: t.Add(30 * time.Minute), Duration: time.Hour}
//	manageable.Conflicts(a, b) // true
//
// # Thread Safety
//
// Entities are not synchronised. They are mutated only by the manager's event
// loop; other goroutines must treat them as read-only snapshots or go through
// the cache.
package manageable
