// Package buffer implements the bounded queues that sit between the event
// publisher and each subscriber.
//
// A full queue never blocks the writer. With DropOldest (the default) the
// oldest item is evicted so a slow reader always sees the most recent
// notifications; DropNewest keeps the backlog and discards the incoming item.
// Every loss is counted in Statistics, exported through WithMetrics, and
// reported to the optional drop callback outside the buffer lock.
//
// Readers wait on Ready and then drain:
//
//	for range buf.Ready() {
//	    for _, item := range buf.ReadBatch(64) {
//	        handle(item)
//	    }
//	}
//
// Ready is closed by Close, which ends the loop above once writes stop.
package buffer
