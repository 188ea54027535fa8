// Package bridge joins an interactive console and a child interpreter.
//
// Three producers feed one ordered [Queue]: the [Forwarder] (raw console
// bytes), the [ChangeWatcher] (reload scripts synthesized from watched
// files), and the initial reload at startup. A single [Dispatcher] drains
// the queue, writes every message to the interpreter's input, and
// intercepts `:l` / `:u` directives in console input to grow or shrink the
// [WatchSet]. [Run] supervises all units together with the child session.
package bridge
