// Package notifications sends ntfy push messages when submissions complete,
// are gated, or fail. Each kind can be toggled in the [notifications] config
// section; without a topic every call is a noop.
package notifications
