// Package notifications sends operator push alerts through an ntfy topic.
//
// The daemon runs a Forwarder that listens on the aggregate outcome channel
// like any other observer and turns publishes and failures into alerts.
// Delivery is best effort: failures are logged and never block job handling.
package notifications
