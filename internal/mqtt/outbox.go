package mqtt

import "log"

// outboxMsg is a serialized message waiting for the broker to come back.
type outboxMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable.
//
// A retained message supersedes any queued retained message on the same
// topic, since subscribers only ever see the last one. Once the limit is
// reached the oldest message is dropped. Not safe for concurrent use.
type outbox struct {
	msgs    []outboxMsg
	limit   int
	dropped int // since the last drain
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit}
}

func (o *outbox) push(m outboxMsg) {
	if m.retained {
		for i, q := range o.msgs {
			if q.retained && q.topic == m.topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	if len(o.msgs) >= o.limit {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.limit)
		}
		o.msgs = o.msgs[1:]
		o.dropped++
	}
	o.msgs = append(o.msgs, m)
}

// drain returns the queued messages oldest first and how many were dropped
// to make room for them, then empties the outbox.
func (o *outbox) drain() ([]outboxMsg, int) {
	msgs, dropped := o.msgs, o.dropped
	o.msgs, o.dropped = nil, 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
