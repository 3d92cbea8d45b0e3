package fit

import (
	"encoding/binary"
	"math"
	"strings"
)

// BaseType is the base type byte of a field definition. Bit 7 marks
// multi-byte types; the low 5 bits are the type number.
type BaseType byte

const (
	TypeEnum    BaseType = 0x00
	TypeSint8   BaseType = 0x01
	TypeUint8   BaseType = 0x02
	TypeSint16  BaseType = 0x83
	TypeUint16  BaseType = 0x84
	TypeSint32  BaseType = 0x85
	TypeUint32  BaseType = 0x86
	TypeString  BaseType = 0x07
	TypeFloat32 BaseType = 0x88
	TypeFloat64 BaseType = 0x89
	TypeUint8z  BaseType = 0x0A
	TypeUint16z BaseType = 0x8B
	TypeUint32z BaseType = 0x8C
	TypeByte    BaseType = 0x0D
	TypeSint64  BaseType = 0x8E
	TypeUint64  BaseType = 0x8F
	TypeUint64z BaseType = 0x90
)

var baseSizes = [...]int{1, 1, 1, 2, 2, 4, 4, 1, 4, 8, 1, 2, 4, 1, 8, 8, 8}

func (t BaseType) number() int { return int(t & 0x1F) }

// Size is the width in bytes of one element of t. Unknown types are treated
// as opaque bytes.
func (t BaseType) Size() int {
	if n := t.number(); n < len(baseSizes) {
		return baseSizes[n]
	}
	return 1
}

// MesgNum is a global message number from the FIT profile.
type MesgNum uint16

const (
	MesgFileID           MesgNum = 0
	MesgDeviceSettings   MesgNum = 2
	MesgUserProfile      MesgNum = 3
	MesgZonesTarget      MesgNum = 7
	MesgSport            MesgNum = 12
	MesgSession          MesgNum = 18
	MesgLap              MesgNum = 19
	MesgRecord           MesgNum = 20
	MesgEvent            MesgNum = 21
	MesgDeviceInfo       MesgNum = 23
	MesgActivity         MesgNum = 34
	MesgFileCreator      MesgNum = 49
	MesgMonitoring       MesgNum = 55
	MesgHRV              MesgNum = 78
	MesgFieldDescription MesgNum = 206
	MesgDeveloperDataID  MesgNum = 207
)

func isKnown(n MesgNum) bool {
	switch n {
	case MesgFileID, MesgDeviceSettings, MesgUserProfile, MesgZonesTarget,
		MesgSport, MesgSession, MesgLap, MesgRecord, MesgEvent, MesgDeviceInfo,
		MesgActivity, MesgFileCreator, MesgMonitoring, MesgHRV,
		MesgFieldDescription, MesgDeveloperDataID:
		return true
	}
	return false
}

// isMetadata selects the lightweight messages kept by Classify.
func isMetadata(n MesgNum) bool {
	switch n {
	case MesgFileID, MesgSport, MesgSession, MesgActivity, MesgDeviceInfo:
		return true
	}
	return false
}

// FieldNumTimestamp is the field number every message uses for its timestamp.
const FieldNumTimestamp byte = 253

// Field is one decoded field. Data aliases the input buffer.
type Field struct {
	Num  byte
	Type BaseType
	Data []byte
	Big  bool
}

func (f Field) order() binary.ByteOrder {
	if f.Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Float returns the first element of a numeric field. ok is false when the
// field holds the invalid sentinel of its type or is too short.
func (f Field) Float() (v float64, ok bool) {
	size := f.Type.Size()
	if len(f.Data) < size {
		return 0, false
	}
	b, o := f.Data, f.order()
	switch f.Type.number() {
	case 0, 2, 13: // enum, uint8, byte
		return float64(b[0]), b[0] != 0xFF
	case 10: // uint8z
		return float64(b[0]), b[0] != 0
	case 1:
		return float64(int8(b[0])), b[0] != 0x7F
	case 3:
		u := o.Uint16(b)
		return float64(int16(u)), u != 0x7FFF
	case 4:
		u := o.Uint16(b)
		return float64(u), u != 0xFFFF
	case 11:
		u := o.Uint16(b)
		return float64(u), u != 0
	case 5:
		u := o.Uint32(b)
		return float64(int32(u)), u != 0x7FFFFFFF
	case 6:
		u := o.Uint32(b)
		return float64(u), u != 0xFFFFFFFF
	case 12:
		u := o.Uint32(b)
		return float64(u), u != 0
	case 8:
		u := o.Uint32(b)
		x := float64(math.Float32frombits(u))
		return x, u != 0xFFFFFFFF && !math.IsNaN(x)
	case 9:
		u := o.Uint64(b)
		x := math.Float64frombits(u)
		return x, u != math.MaxUint64 && !math.IsNaN(x)
	case 14:
		u := o.Uint64(b)
		return float64(int64(u)), u != 0x7FFFFFFFFFFFFFFF
	case 15:
		u := o.Uint64(b)
		return float64(u), u != math.MaxUint64
	case 16:
		u := o.Uint64(b)
		return float64(u), u != 0
	}
	return 0, false
}

// Uint returns the first element as an unsigned integer.
func (f Field) Uint() (uint64, bool) {
	v, ok := f.Float()
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// String returns a string field up to its first NUL.
func (f Field) String() string {
	s := string(f.Data)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// Message is a decoded data message. Offset is the absolute position of its
// record header in the input.
type Message struct {
	Num    MesgNum
	Offset int64
	Fields []Field
}

// Field returns the field with the given number.
func (m *Message) Field(num byte) (Field, bool) {
	for _, f := range m.Fields {
		if f.Num == num {
			return f, true
		}
	}
	return Field{}, false
}

// Header is the file header of one FIT segment.
type Header struct {
	Size            byte
	ProtocolVersion byte
	ProfileVersion  uint16
	DataSize        uint32
	Offset          int64
}

// File is the result of a decode: the headers of every chained segment and
// the messages of all segments in stream order.
type File struct {
	Headers  []Header
	Messages []Message
}

// Filter returns the messages with the given global number.
func (f *File) Filter(num MesgNum) []*Message {
	var out []*Message
	for i := range f.Messages {
		if f.Messages[i].Num == num {
			out = append(out, &f.Messages[i])
		}
	}
	return out
}
