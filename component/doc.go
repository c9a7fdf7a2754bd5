// Package component provides the lifecycle and discovery contracts for the
// feed's long-running parts.
//
// A component is created by its own package constructor, then driven through
// Initialize, Start and Stop. Initialize validates without side effects,
// Start receives the process context, and Stop releases sockets, servers and
// handles within the given timeout.
//
// Group runs several components as one unit:
//
//	group := component.NewGroup(logger)
//	group.Add(overlay)
//	group.Add(listener)
//	if err := group.Start(ctx); err != nil {
//		return err
//	}
//	defer group.Stop(10 * time.Second)
//
// Components are started in the order they were added and stopped in reverse,
// so sinks are running before the listener starts feeding them and keep
// running until the listener is gone.
package component
