// Package notify delivers job lifecycle notifications to the operator chat.
// Notifications are strictly best-effort: a delivery failure is logged and
// never surfaces into pipeline control flow.
package notify
