// Package reconcile keeps an observer's channel subscriptions and item cache
// in line with the daemon's authoritative item list.
//
// Every pass derives the wanted subscriptions from scratch (the active job id
// of each in-flight item) and only issues the joins and leaves needed to get
// there, so passes can be repeated freely after reconnects or missed events.
package reconcile
