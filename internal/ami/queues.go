package ami

import (
	"context"
	"fmt"
	"strconv"

	"queuesync/internal/logger"
	"queuesync/internal/queue"
)

const (
	EventQueueParams         = "QueueParams"
	EventQueueStatusComplete = "QueueStatusComplete"
)

// Requester is the part of a Session the enumerator needs
type Requester interface {
	SendList(ctx context.Context, action Action, complete string) (*Message, []Message, error)
}

// QueueEnumerator lists the queues Asterisk currently has loaded
type QueueEnumerator struct{}

// NewQueueEnumerator creates an enumerator
func NewQueueEnumerator() *QueueEnumerator {
	return &QueueEnumerator{}
}

// ListQueues issues QueueStatus and collects every QueueParams event up to
// QueueStatusComplete. Member and caller entries are skipped. A QueueParams
// event without a Queue header is returned with an empty number so the
// caller can report it.
func (e *QueueEnumerator) ListQueues(ctx context.Context, r Requester) ([]queue.LiveQueue, error) {
	_, events, err := r.SendList(ctx, NewAction("QueueStatus"), EventQueueStatusComplete)
	if err != nil {
		return nil, fmt.Errorf("listando colas: %w", err)
	}

	queues := make([]queue.LiveQueue, 0, len(events))
	for i := range events {
		ev := &events[i]
		if ev.Type() != EventQueueParams {
			continue
		}
		queues = append(queues, parseQueueParams(ev))
	}

	logger.For("ami").Info("colas enumeradas", "queues", len(queues), "events", len(events))
	return queues, nil
}

func parseQueueParams(ev *Message) queue.LiveQueue {
	attrs := make(map[string]string, len(ev.Keys))
	for _, k := range ev.Keys {
		if k == "Event" || k == "ActionID" {
			continue
		}
		attrs[k] = ev.Fields[k]
	}

	return queue.LiveQueue{
		QueueNumber:  ev.Get("Queue"),
		Strategy:     ev.Get("Strategy"),
		MaxCallers:   atoi(ev.Get("Max")),
		Weight:       atoi(ev.Get("Weight")),
		ServiceLevel: atoi(ev.Get("ServiceLevel")),
		Attributes:   attrs,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
