package midi

// Sink receives events a guest emits during one audio block. WriteMidiEvent
// reports whether the event was accepted; the guest sees the answer.
type Sink interface {
	WriteMidiEvent(e Event) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event) bool

func (f SinkFunc) WriteMidiEvent(e Event) bool {
	return f(e)
}

// Buffer is a fixed-capacity Sink that keeps events in arrival order. It
// rejects events once full, so it never allocates on the audio path except to
// detach SysEx payloads.
type Buffer struct {
	events  []Event
	dropped int
}

// NewBuffer creates a buffer holding up to capacity events.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{events: make([]Event, 0, capacity)}
}

func (b *Buffer) WriteMidiEvent(e Event) bool {
	if len(b.events) == cap(b.events) {
		b.dropped++
		return false
	}
	b.events = append(b.events, e.Detach())
	return true
}

// Events returns the buffered events. The slice is reused after Reset.
func (b *Buffer) Events() []Event {
	return b.events
}

func (b *Buffer) Len() int {
	return len(b.events)
}

// Dropped returns the number of events rejected since the last Reset.
func (b *Buffer) Dropped() int {
	return b.dropped
}

func (b *Buffer) Reset() {
	b.events = b.events[:0]
	b.dropped = 0
}
