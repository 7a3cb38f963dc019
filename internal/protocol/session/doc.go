// Package session owns one connection's protocol state: the inbound and
// outbound buffers, the outgoing frame queue, and the interest rules that
// tell the reactor whether the connection wants to read, write, or close.
//
// A Context is confined to the reactor loop. Its Outbox is the one piece
// shared with other goroutines (file transfer senders), so it carries its
// own lock and a drained signal.
package session
