// Package publisher fans out match notifications to independent subscribers.
//
// Every notification carries a sequence number that increases across the
// whole publisher, and the arrival time of the datagram that caused it. Each
// subscriber owns a bounded queue: Publish never blocks, and a subscriber that
// falls behind loses its oldest notifications first. Lost notifications are
// counted per subscription and exported as the
// vta_publisher_subscriber_drops_total metric.
//
// Basic usage:
//
//	pub := publisher.New(publisher.WithQueueSize(256))
//	sub, err := pub.Subscribe("overlay")
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	for {
//		n, err := sub.Next(ctx)
//		if err != nil {
//			return err
//		}
//		handle(n)
//	}
package publisher
