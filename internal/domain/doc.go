// Package domain holds the types the cooldown scheduler passes between
// layers: vote events, cooldown records, notification subscriptions and
// the push payload, plus the sentinel errors stores and transports
// return. It carries validation and accessors only, no wiring, so every
// other package can import it without cycles.
package domain
