// Package store provides the persistence backends for subscriptions
// and their cooldown records: process memory, a JSON file, PostgreSQL,
// and Redis, selected through configuration. Open wires the chosen
// backend with delivery-token encryption and operation metrics.
package store
