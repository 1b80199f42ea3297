package compiler

import (
	"github.com/roach88/consim/internal/ir"
)

// Message is one value sent from Sender to Receiver in a round.
type Message struct {
	Sender   int     `json:"sender"`
	Receiver int     `json:"receiver"`
	Payload  float64 `json:"payload"`
}

// Context is everything a rule may read while one process is evaluated.
//
// Snapshot is the process's value before the round began and never changes
// during the round. XSelf starts equal to Snapshot and carries the result of
// each phase into the next one. Inbox is ordered by sender.
type Context struct {
	XSelf    float64
	Snapshot float64
	Inbox    []Message
	NumNodes int
	NodeID   int
	Round    int
	Params   map[string]float64
}

// InboxValues returns the received payloads in sender order.
func (c *Context) InboxValues() []float64 {
	values := make([]float64, len(c.Inbox))
	for i, m := range c.Inbox {
		values[i] = m.Payload
	}
	return values
}

// DiffValues returns received payloads that differ from the snapshot.
func (c *Context) DiffValues() []float64 {
	var values []float64
	for _, m := range c.Inbox {
		if m.Payload != c.Snapshot {
			values = append(values, m.Payload)
		}
	}
	return values
}

// LeaderID returns the leader bound in the parameters.
func (c *Context) LeaderID() (int, bool) {
	v, ok := c.Params[ir.ParamLeader]
	if !ok {
		return 0, false
	}
	return int(v), true
}

// messageFrom returns the message sent by sender, if it arrived.
func (c *Context) messageFrom(sender int) (Message, bool) {
	for _, m := range c.Inbox {
		if m.Sender == sender {
			return m, true
		}
	}
	return Message{}, false
}

// distinctSenders counts senders present in the inbox.
func (c *Context) distinctSenders() int {
	seen := make(map[int]bool, len(c.Inbox))
	for _, m := range c.Inbox {
		seen[m.Sender] = true
	}
	return len(seen)
}
