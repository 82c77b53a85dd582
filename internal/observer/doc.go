// Package observer is the client side of the notification channel. It keeps a
// websocket open to the daemon, reconnects with backoff, and drives a
// reconcile.Engine so the set of joined job channels always matches the items
// that currently have work in flight.
package observer
