// Package events delivers object-created notifications to registered
// handlers. Delivery is asynchronous and at-least-once: a handler error
// requeues the event with backoff, so handlers must be idempotent.
package events
