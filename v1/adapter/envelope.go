package adapter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

// ErrCorruptEntry is returned when stored bytes are not a valid envelope.
var ErrCorruptEntry = errors.New("coalesce: corrupt cache entry")

const (
	kindValue byte = 1
	kindNull  byte = 2

	// magic(4) | kind(1) | expiresAt unix nano (i64 be, 0 = none) | payload
	envelopeHeader = 4 + 1 + 8
)

var envelopeMagic = [...]byte{'C', 'C', 'O', '1'}

func encodeEntry[T any](codec Codec, e Entry[T], expiresAt time.Time) ([]byte, error) {
	var payload []byte
	kind := kindNull
	if !e.Null {
		var err error
		if payload, err = codec.Marshal(e.Value); err != nil {
			return nil, err
		}
		kind = kindValue
	}
	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.UnixNano()
	}

	var buf bytes.Buffer
	buf.Grow(envelopeHeader + len(payload))
	buf.Write(envelopeMagic[:])
	buf.WriteByte(kind)
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decodeEntry returns ok=false for an envelope that expired at or before now.
func decodeEntry[T any](codec Codec, b []byte, now time.Time) (Entry[T], bool, error) {
	if len(b) < envelopeHeader || !bytes.Equal(b[:4], envelopeMagic[:]) {
		return Entry[T]{}, false, ErrCorruptEntry
	}
	exp := int64(binary.BigEndian.Uint64(b[5:envelopeHeader]))
	if exp != 0 && now.UnixNano() >= exp {
		return Entry[T]{}, false, nil
	}
	switch b[4] {
	case kindNull:
		if len(b) != envelopeHeader {
			return Entry[T]{}, false, ErrCorruptEntry
		}
		return NullEntry[T](), true, nil
	case kindValue:
		var v T
		if err := codec.Unmarshal(b[envelopeHeader:], &v); err != nil {
			return Entry[T]{}, false, err
		}
		return ValueEntry(v), true, nil
	default:
		return Entry[T]{}, false, ErrCorruptEntry
	}
}
