package fit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// FieldDef describes one field of a definition written by Encoder.
type FieldDef struct {
	Num  byte
	Type BaseType
}

// DevFieldDef describes a developer data field.
type DevFieldDef struct {
	Num      byte
	Size     byte
	DevIndex byte
}

// Value is a field value written by Encoder.Message. Raw holds the integer
// bit pattern; signed values are passed as uint64(int64(v)).
type Value struct {
	Num  byte
	Type BaseType
	Raw  uint64
}

// U8 returns a uint8 value.
func U8(num byte, v uint8) Value { return Value{Num: num, Type: TypeUint8, Raw: uint64(v)} }

// E returns an enum value.
func E(num byte, v uint8) Value { return Value{Num: num, Type: TypeEnum, Raw: uint64(v)} }

// U16 returns a uint16 value.
func U16(num byte, v uint16) Value { return Value{Num: num, Type: TypeUint16, Raw: uint64(v)} }

// U32 returns a uint32 value.
func U32(num byte, v uint32) Value { return Value{Num: num, Type: TypeUint32, Raw: uint64(v)} }

// DateTime returns a date_time value for t.
func DateTime(num byte, t time.Time) Value {
	return U32(num, uint32(t.Unix()-fitEpoch))
}

// Scaled returns a uint16 or uint32 value holding (v + offset) * scale.
func Scaled(num byte, typ BaseType, v, scale, offset float64) Value {
	return Value{Num: num, Type: typ, Raw: uint64(math.Round((v + offset) * scale))}
}

type layout struct {
	global MesgNum
	fields []FieldDef
	dev    []DevFieldDef
}

// Encoder writes FIT files. It is used to build fixtures and by tools that
// re-export recordings.
type Encoder struct {
	// BigEndian selects the architecture of definitions written from now on.
	BigEndian bool

	body    bytes.Buffer
	slots   [16]*layout
	keys    [16]string
	nextLoc int
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) order() binary.ByteOrder {
	if e.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Define writes a definition message for a local message type.
func (e *Encoder) Define(local byte, global MesgNum, fields []FieldDef, dev []DevFieldDef) {
	hdr := 0x40 | local&0x0F
	if len(dev) > 0 {
		hdr |= 0x20
	}
	e.body.WriteByte(hdr)
	e.body.WriteByte(0)
	if e.BigEndian {
		e.body.WriteByte(1)
	} else {
		e.body.WriteByte(0)
	}
	var g [2]byte
	e.order().PutUint16(g[:], uint16(global))
	e.body.Write(g[:])
	e.body.WriteByte(byte(len(fields)))
	for _, f := range fields {
		e.body.Write([]byte{f.Num, byte(f.Type.Size()), byte(f.Type)})
	}
	if len(dev) > 0 {
		e.body.WriteByte(byte(len(dev)))
		for _, d := range dev {
			e.body.Write([]byte{d.Num, d.Size, d.DevIndex})
		}
	}
	e.slots[local&0x0F] = &layout{global: global, fields: fields, dev: dev}
	e.keys[local&0x0F] = ""
}

// Data writes a data message for a previously defined local type. raw holds
// one value per field and dev the concatenated developer field bytes.
func (e *Encoder) Data(local byte, raw []uint64, dev []byte) error {
	e.body.WriteByte(local & 0x0F)
	return e.payload(local, raw, dev)
}

// Compressed writes a data message with a compressed timestamp header.
// Only local types 0 to 3 can be addressed this way.
func (e *Encoder) Compressed(local byte, timeOffset byte, raw []uint64) error {
	if local > 3 {
		return fmt.Errorf("fit: compressed header needs local type 0-3, got %d", local)
	}
	e.body.WriteByte(0x80 | local<<5 | timeOffset&0x1F)
	return e.payload(local, raw, nil)
}

func (e *Encoder) payload(local byte, raw []uint64, dev []byte) error {
	l := e.slots[local&0x0F]
	if l == nil {
		return fmt.Errorf("fit: local type %d is not defined", local)
	}
	if len(raw) != len(l.fields) {
		return fmt.Errorf("fit: %d values for %d fields", len(raw), len(l.fields))
	}
	for i, f := range l.fields {
		e.putValue(f.Type, raw[i])
	}
	want := 0
	for _, d := range l.dev {
		want += int(d.Size)
	}
	if len(dev) != want {
		return fmt.Errorf("fit: %d developer bytes for %d expected", len(dev), want)
	}
	e.body.Write(dev)
	return nil
}

func (e *Encoder) putValue(t BaseType, v uint64) {
	o := e.order()
	switch t.Size() {
	case 1:
		e.body.WriteByte(byte(v))
	case 2:
		var b [2]byte
		o.PutUint16(b[:], uint16(v))
		e.body.Write(b[:])
	case 4:
		var b [4]byte
		o.PutUint32(b[:], uint32(v))
		e.body.Write(b[:])
	case 8:
		var b [8]byte
		o.PutUint64(b[:], v)
		e.body.Write(b[:])
	}
}

// Message writes one data message, emitting a definition first whenever the
// field layout has not been defined on a local type yet.
func (e *Encoder) Message(global MesgNum, values ...Value) {
	fields := make([]FieldDef, len(values))
	raw := make([]uint64, len(values))
	var key strings.Builder
	fmt.Fprintf(&key, "%d", global)
	for i, v := range values {
		fields[i] = FieldDef{Num: v.Num, Type: v.Type}
		raw[i] = v.Raw
		fmt.Fprintf(&key, ":%d/%d", v.Num, v.Type)
	}
	k := key.String()
	if e.BigEndian {
		k += ":be"
	}

	local := -1
	for i, existing := range e.keys {
		if existing == k {
			local = i
			break
		}
	}
	if local < 0 {
		local = e.nextLoc
		e.nextLoc = (e.nextLoc + 1) % len(e.slots)
		e.Define(byte(local), global, fields, nil)
		e.keys[local] = k
	}
	// Layout and values come from the same slice, so payload cannot fail.
	_ = e.Data(byte(local), raw, nil)
}

// Bytes returns the complete file: a 14-byte header with CRC, the message
// data and the trailing file CRC.
func (e *Encoder) Bytes() []byte {
	data := e.body.Bytes()
	out := make([]byte, 0, headerFull+len(data)+crcSize)
	out = append(out, headerFull, 0x20)
	out = binary.LittleEndian.AppendUint16(out, 2132)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, signature...)
	out = binary.LittleEndian.AppendUint16(out, Checksum(out[:headerMin]))
	out = append(out, data...)
	return binary.LittleEndian.AppendUint16(out, Checksum(out))
}
