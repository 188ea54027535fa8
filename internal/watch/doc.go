// Package watch delivers change notifications for individual files.
//
// A [Notifier] tracks a mutable set of subscribed paths and reports
// [Event]s for them on a channel. Two backends are provided: a stat-based
// [Poller] that checks every subscribed file on a fixed interval, and an
// [FSNotifier] built on native OS notifications that coalesces bursts of
// writes with a per-path [Debouncer].
package watch
