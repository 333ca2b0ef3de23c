// Package notify delivers human-facing notifications about posting
// activity. Deliveries flow through a bounded queue with a rate limit
// so backends can be slow or broken without affecting the scheduler.
// Two drivers exist: desktop (freedesktop notifications over the
// session bus) and telegram (Bot API push to a single chat).
package notify
