// Package server exposes the HTTP edge: vote ingestion, subscription
// lifecycle webhooks, a manual reconciliation trigger, and the
// observability endpoints.
package server
