package midi

import (
	"encoding/binary"

	"github.com/wippyai/wasm-dsp/errors"
)

// HeaderSize is the size of the {frame u32, size u32} record header.
const HeaderSize = 8

// RecordSize is the encoded size of e.
func RecordSize(e *Event) int {
	return HeaderSize + int(e.Size)
}

// PutRecord encodes e into dst as {frame u32 LE, size u32 LE, data} and
// returns the bytes written. A record that does not fit returns a
// CapacityError and leaves dst untouched.
func PutRecord(dst []byte, e *Event) (int, error) {
	data := e.Bytes()
	if uint32(len(data)) != e.Size {
		return 0, errors.InvalidInput(errors.PhaseMIDI, "event size does not match its data")
	}
	n := HeaderSize + len(data)
	if n > len(dst) {
		return 0, errors.Capacity(errors.PhaseMIDI, uint64(n), uint64(len(dst)))
	}
	binary.LittleEndian.PutUint32(dst[0:], e.Frame)
	binary.LittleEndian.PutUint32(dst[4:], e.Size)
	copy(dst[HeaderSize:], data)
	return n, nil
}

// ParseRecord decodes the record at the start of src. Messages longer than
// DataSize alias src through DataExt.
func ParseRecord(src []byte) (Event, int, error) {
	if len(src) < HeaderSize {
		return Event{}, 0, errors.Capacity(errors.PhaseMIDI, HeaderSize, uint64(len(src)))
	}
	e := Event{
		Frame: binary.LittleEndian.Uint32(src[0:]),
		Size:  binary.LittleEndian.Uint32(src[4:]),
	}
	end := uint64(HeaderSize) + uint64(e.Size)
	if end > uint64(len(src)) {
		return Event{}, 0, errors.New(errors.PhaseMIDI, errors.KindOutOfBounds).
			Value(e.Size).
			Detail("record size %d exceeds the %d bytes available", e.Size, len(src)-HeaderSize).
			Build()
	}
	data := src[HeaderSize:end]
	if e.Size > DataSize {
		e.DataExt = data
	} else {
		copy(e.Data[:], data)
	}
	return e, int(end), nil
}

// Encode writes as many events as fit into dst, in order. It returns the
// number of events written and the bytes used. Events past the first one that
// does not fit are dropped, which is reported as a CapacityError.
func Encode(dst []byte, events []Event) (count, used int, err error) {
	for i := range events {
		n, perr := PutRecord(dst[used:], &events[i])
		if perr != nil {
			if errors.KindOf(perr) == errors.KindCapacity {
				return count, used, errors.New(errors.PhaseMIDI, errors.KindCapacity).
					Value(len(events) - count).
					Detail("dropped %d of %d events: region holds %d bytes", len(events)-count, len(events), len(dst)).
					Build()
			}
			return count, used, perr
		}
		used += n
		count++
	}
	return count, used, nil
}
