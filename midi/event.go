// Package midi holds the MIDI event value exchanged with DSP guests and the
// byte record the guest reads and writes in its MIDI region.
package midi

import (
	"fmt"
)

// DataSize is the number of message bytes an Event stores inline.
const DataSize = 4

// Status nibbles of channel voice messages.
const (
	StatusNoteOff         uint8 = 0x80
	StatusNoteOn          uint8 = 0x90
	StatusPolyPressure    uint8 = 0xA0
	StatusControlChange   uint8 = 0xB0
	StatusProgramChange   uint8 = 0xC0
	StatusChannelPressure uint8 = 0xD0
	StatusPitchBend       uint8 = 0xE0
	StatusSysEx           uint8 = 0xF0
)

const (
	CCModWheel    uint8 = 1
	CCVolume      uint8 = 7
	CCPan         uint8 = 10
	CCExpression  uint8 = 11
	CCSustain     uint8 = 64
	CCAllSoundOff uint8 = 120
	CCAllNotesOff uint8 = 123
)

// Event is one timestamped MIDI message. Messages of up to DataSize bytes are
// stored in Data; longer ones (SysEx) are referenced by DataExt.
//
// Events delivered to a Sink by the bridge may have DataExt aliasing guest
// memory. Such slices are valid only for the duration of the sink call.
type Event struct {
	Frame   uint32
	Size    uint32
	Data    [DataSize]byte
	DataExt []byte
}

// New builds an event from raw message bytes.
func New(frame uint32, msg ...byte) Event {
	e := Event{Frame: frame, Size: uint32(len(msg))}
	if len(msg) > DataSize {
		e.DataExt = msg
		return e
	}
	copy(e.Data[:], msg)
	return e
}

func NoteOn(frame uint32, channel, note, velocity uint8) Event {
	return New(frame, StatusNoteOn|channel&0x0F, note&0x7F, velocity&0x7F)
}

func NoteOff(frame uint32, channel, note, velocity uint8) Event {
	return New(frame, StatusNoteOff|channel&0x0F, note&0x7F, velocity&0x7F)
}

func ControlChange(frame uint32, channel, controller, value uint8) Event {
	return New(frame, StatusControlChange|channel&0x0F, controller&0x7F, value&0x7F)
}

// PitchBend takes a value in -8192..8191, 0 being center.
func PitchBend(frame uint32, channel uint8, value int16) Event {
	v := uint16(int32(value) + 8192)
	return New(frame, StatusPitchBend|channel&0x0F, uint8(v&0x7F), uint8(v>>7&0x7F))
}

// Bytes returns the message bytes.
func (e *Event) Bytes() []byte {
	if e.DataExt != nil {
		return e.DataExt
	}
	n := e.Size
	if n > DataSize {
		n = DataSize
	}
	return e.Data[:n]
}

// Status returns the status byte, or 0 for an empty message.
func (e *Event) Status() uint8 {
	b := e.Bytes()
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// Channel returns the channel of a channel voice message.
func (e *Event) Channel() uint8 {
	return e.Status() & 0x0F
}

func (e *Event) IsNoteOn() bool {
	b := e.Bytes()
	return len(b) >= 3 && b[0]&0xF0 == StatusNoteOn && b[2] > 0
}

// IsNoteOff also reports note-on messages with zero velocity.
func (e *Event) IsNoteOff() bool {
	b := e.Bytes()
	if len(b) < 3 {
		return false
	}
	return b[0]&0xF0 == StatusNoteOff || (b[0]&0xF0 == StatusNoteOn && b[2] == 0)
}

// Detach returns a copy whose DataExt no longer aliases the original.
func (e Event) Detach() Event {
	if e.DataExt != nil {
		e.DataExt = append([]byte(nil), e.DataExt...)
	}
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("Event{frame:%d, size:%d, data:% X}", e.Frame, e.Size, e.Bytes())
}
