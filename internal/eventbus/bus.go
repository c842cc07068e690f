package eventbus

// inboxSize bounds how many pending Subscribe/Publish requests queue up
// ahead of the bus actor.
const inboxSize = 100

// subscriberBuffer bounds how many events a slow subscriber can fall behind
// by before new events are dropped for it; a subscriber that cannot keep up
// loses events rather than stalling every publisher, matching the lossy
// semantics of a broadcast channel.
const subscriberBuffer = 16

type subscribeMsg struct {
	reply chan<- (<-chan Event)
}

type unsubscribeMsg struct {
	ch <-chan Event
}

type publishMsg struct {
	event Event
}

// Bus fans out published events to every current subscriber. All state
// (the subscriber list) lives in a single goroutine, so Subscribe/Publish
// need no locking of their own.
type Bus struct {
	msgs chan any
}

// New starts a Bus.
func New() *Bus {
	b := &Bus{msgs: make(chan any, inboxSize)}
	go b.run()
	return b
}

func (b *Bus) run() {
	var subscribers []chan Event
	for raw := range b.msgs {
		switch msg := raw.(type) {
		case subscribeMsg:
			ch := make(chan Event, subscriberBuffer)
			subscribers = append(subscribers, ch)
			msg.reply <- ch
		case unsubscribeMsg:
			for i, sub := range subscribers {
				if sub == msg.ch {
					subscribers = append(subscribers[:i], subscribers[i+1:]...)
					close(sub)
					break
				}
			}
		case publishMsg:
			for _, sub := range subscribers {
				select {
				case sub <- msg.event:
				default:
				}
			}
		}
	}
}

// Subscribe registers a new listener and returns its event stream. The
// returned channel is buffered; a subscriber that stops reading loses
// events once its buffer fills rather than blocking other subscribers or
// publishers.
func (b *Bus) Subscribe() <-chan Event {
	reply := make(chan (<-chan Event), 1)
	b.msgs <- subscribeMsg{reply: reply}
	return <-reply
}

// Unsubscribe stops delivering events to a channel previously returned by
// Subscribe and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.msgs <- unsubscribeMsg{ch: ch}
}

// Publish delivers event to every current subscriber.
func (b *Bus) Publish(event Event) {
	b.msgs <- publishMsg{event: event}
}
