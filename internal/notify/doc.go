// Package notify builds and delivers cooldown-ended push notifications.
//
// The Notifier loads the delivery capability fresh at fire time, builds a
// message within the transport limits, and classifies the transport's answer
// into an outcome. The PushClient is the concrete transport: one rate-limited,
// circuit-broken HTTP POST per notification.
package notify
