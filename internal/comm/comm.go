// Package comm is the rendezvous layer between evaluation ranks. Ranks
// are goroutines; each owns an inbox channel and addresses peers by
// rank number. A single-rank group degenerates to serial execution
// without any channel traffic in callers that check Size first.
package comm

// Tag classifies a message.
type Tag int

const (
	// TagDoWork carries a parameter vector for a worker to evaluate.
	TagDoWork Tag = 101
	// TagStopWork tells a worker to exit its receive loop.
	TagStopWork Tag = 102
	// TagResult carries an evaluated objective back to the master.
	TagResult Tag = 103
)

// Message is one rank-to-rank transfer. Index identifies which
// population member the Data vector or Value belongs to.
type Message struct {
	Tag   Tag
	From  int
	Index int
	Data  []float64
	Value float64
}

// Group owns the inboxes of a fixed set of ranks.
type Group struct {
	inboxes []chan Message
}

// NewGroup creates n ranks. Inboxes are buffered with the given
// capacity so senders do not block on ranks that have not reached
// their receive yet; size it to the largest dispatch burst, the whole
// population for a calibration. A non-positive capacity gets a small
// default.
func NewGroup(n, capacity int) *Group {
	if n < 1 {
		n = 1
	}
	if capacity <= 0 {
		capacity = 4 * n
	}
	g := &Group{inboxes: make([]chan Message, n)}
	for i := range g.inboxes {
		g.inboxes[i] = make(chan Message, capacity)
	}
	return g
}

// Size is the number of ranks.
func (g *Group) Size() int { return len(g.inboxes) }

// Endpoint returns rank's handle into the group.
func (g *Group) Endpoint(rank int) *Endpoint {
	return &Endpoint{rank: rank, g: g}
}

// Endpoint is one rank's view of the group.
type Endpoint struct {
	rank int
	g    *Group
}

// Rank is this endpoint's rank number, zero-based. Rank zero is the
// master.
func (e *Endpoint) Rank() int { return e.rank }

// Size is the number of ranks in the group.
func (e *Endpoint) Size() int { return e.g.Size() }

// Send delivers m to the rank's inbox. The From field is stamped here.
func (e *Endpoint) Send(to int, m Message) {
	m.From = e.rank
	e.g.inboxes[to] <- m
}

// Recv blocks until a message arrives in this rank's inbox.
func (e *Endpoint) Recv() Message {
	return <-e.g.inboxes[e.rank]
}

// Broadcast sends m to every other rank.
func (e *Endpoint) Broadcast(m Message) {
	for to := range e.g.inboxes {
		if to == e.rank {
			continue
		}
		e.Send(to, m)
	}
}

// Serial is the one-rank group used when no parallelism is requested.
func Serial() *Endpoint {
	return NewGroup(1, 0).Endpoint(0)
}
