// Package fit decodes the Garmin FIT binary activity format.
//
// Decoding is pure: callers hand in the complete file bytes. Decode
// materialises every known message, Classify only the small metadata
// messages, skipping per-sample records by length.
package fit

import (
	"encoding/binary"

	"github.com/starford/cadence/internal/apperr"
)

const (
	opDecode   = "fit: decode"
	signature  = ".FIT"
	maxProtoV  = 2
	headerMin  = 12
	headerFull = 14
	crcSize    = 2
)

type fieldDef struct {
	num  byte
	size int
	typ  BaseType
}

type definition struct {
	global MesgNum
	big    bool
	fields []fieldDef
	size   int // total payload size including developer fields
	tsPos  int // payload offset of a uint32 timestamp field, -1 if none
}

type decoder struct {
	data  []byte
	pos   int
	end   int
	keep  func(MesgNum) bool
	defs  [16]*definition
	lastT uint32
	out   []Message
}

// Decode fully decodes data, returning every message of a known type in
// stream order. Chained FIT segments are decoded one after another.
func Decode(data []byte) (*File, error) {
	return decode(data, isKnown)
}

func decode(data []byte, keep func(MesgNum) bool) (*File, error) {
	if len(data) == 0 {
		return nil, apperr.Malformed(opDecode, 0, "empty input")
	}
	f := &File{}
	pos := 0
	for pos < len(data) {
		h, err := parseHeader(data[pos:], int64(pos))
		if err != nil {
			return nil, err
		}
		dataStart := pos + int(h.Size)
		dataEnd := dataStart + int(h.DataSize)
		if dataEnd+crcSize > len(data) || dataEnd < dataStart {
			return nil, apperr.Malformed(opDecode, int64(pos+4),
				"data size %d exceeds input length %d", h.DataSize, len(data)-dataStart)
		}
		want := binary.LittleEndian.Uint16(data[dataEnd:])
		if got := Checksum(data[pos:dataEnd]); got != want {
			return nil, apperr.Malformed(opDecode, int64(dataEnd),
				"file crc mismatch: computed 0x%04x, stored 0x%04x", got, want)
		}

		d := &decoder{data: data, pos: dataStart, end: dataEnd, keep: keep, out: f.Messages}
		if err := d.run(); err != nil {
			return nil, err
		}
		f.Messages = d.out
		f.Headers = append(f.Headers, h)
		pos = dataEnd + crcSize
	}
	return f, nil
}

func parseHeader(b []byte, base int64) (Header, error) {
	if len(b) < headerMin {
		return Header{}, apperr.Malformed(opDecode, base, "truncated header: %d bytes", len(b))
	}
	size := b[0]
	if size != headerMin && size != headerFull {
		return Header{}, apperr.Malformed(opDecode, base, "unsupported header size %d", size)
	}
	if len(b) < int(size) {
		return Header{}, apperr.Malformed(opDecode, base, "truncated header: %d bytes", len(b))
	}
	if string(b[8:12]) != signature {
		return Header{}, apperr.Malformed(opDecode, base+8, "missing %s signature", signature)
	}
	if b[1]>>4 > maxProtoV {
		return Header{}, apperr.Malformed(opDecode, base+1, "unsupported protocol version %d.%d", b[1]>>4, b[1]&0x0F)
	}
	h := Header{
		Size:            size,
		ProtocolVersion: b[1],
		ProfileVersion:  binary.LittleEndian.Uint16(b[2:4]),
		DataSize:        binary.LittleEndian.Uint32(b[4:8]),
		Offset:          base,
	}
	if size == headerFull {
		// A zero header CRC means the writer did not compute one.
		if stored := binary.LittleEndian.Uint16(b[12:14]); stored != 0 {
			if got := Checksum(b[:12]); got != stored {
				return Header{}, apperr.Malformed(opDecode, base+12,
					"header crc mismatch: computed 0x%04x, stored 0x%04x", got, stored)
			}
		}
	}
	return h, nil
}

func (d *decoder) run() error {
	for d.pos < d.end {
		start := d.pos
		hdr := d.data[d.pos]
		d.pos++

		if hdr&0x80 != 0 {
			local := (hdr >> 5) & 0x03
			offset := uint32(hdr & 0x1F)
			ts := d.lastT&^0x1F | offset
			if offset < d.lastT&0x1F {
				ts += 0x20
			}
			d.lastT = ts
			if err := d.readData(start, local, &ts); err != nil {
				return err
			}
			continue
		}

		local := hdr & 0x0F
		var err error
		if hdr&0x40 != 0 {
			err = d.readDefinition(start, local, hdr&0x20 != 0)
		} else {
			err = d.readData(start, local, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) need(start, n int, what string) error {
	if d.pos+n > d.end {
		return apperr.Malformed(opDecode, int64(start),
			"truncated %s: need %d bytes, %d left", what, n, d.end-d.pos)
	}
	return nil
}

func (d *decoder) readDefinition(start int, local byte, dev bool) error {
	if err := d.need(start, 5, "definition"); err != nil {
		return err
	}
	arch := d.data[d.pos+1]
	if arch > 1 {
		return apperr.Malformed(opDecode, int64(d.pos+1), "unknown architecture %d", arch)
	}
	def := &definition{big: arch == 1, tsPos: -1}
	if def.big {
		def.global = MesgNum(binary.BigEndian.Uint16(d.data[d.pos+2:]))
	} else {
		def.global = MesgNum(binary.LittleEndian.Uint16(d.data[d.pos+2:]))
	}
	n := int(d.data[d.pos+4])
	d.pos += 5

	if err := d.need(start, 3*n, "field definitions"); err != nil {
		return err
	}
	def.fields = make([]fieldDef, n)
	for i := 0; i < n; i++ {
		fd := fieldDef{num: d.data[d.pos], size: int(d.data[d.pos+1]), typ: BaseType(d.data[d.pos+2])}
		if fd.num == FieldNumTimestamp && fd.size == 4 {
			def.tsPos = def.size
		}
		def.fields[i] = fd
		def.size += fd.size
		d.pos += 3
	}

	if dev {
		if err := d.need(start, 1, "developer field count"); err != nil {
			return err
		}
		nd := int(d.data[d.pos])
		d.pos++
		if err := d.need(start, 3*nd, "developer field definitions"); err != nil {
			return err
		}
		for i := 0; i < nd; i++ {
			def.size += int(d.data[d.pos+1])
			d.pos += 3
		}
	}

	d.defs[local] = def
	return nil
}

func (d *decoder) readData(start int, local byte, compressedTS *uint32) error {
	def := d.defs[local]
	if def == nil {
		return apperr.Malformed(opDecode, int64(start), "data message for undefined local type %d", local)
	}
	if err := d.need(start, def.size, "data message"); err != nil {
		return err
	}
	payload := d.data[d.pos : d.pos+def.size]
	d.pos += def.size

	if def.tsPos >= 0 {
		raw := payload[def.tsPos : def.tsPos+4]
		var ts uint32
		if def.big {
			ts = binary.BigEndian.Uint32(raw)
		} else {
			ts = binary.LittleEndian.Uint32(raw)
		}
		if ts != 0xFFFFFFFF {
			d.lastT = ts
		}
	}

	if !d.keep(def.global) {
		return nil
	}

	m := Message{Num: def.global, Offset: int64(start), Fields: make([]Field, 0, len(def.fields)+1)}
	off := 0
	for _, fd := range def.fields {
		m.Fields = append(m.Fields, Field{
			Num:  fd.num,
			Type: fd.typ,
			Data: payload[off : off+fd.size],
			Big:  def.big,
		})
		off += fd.size
	}
	if compressedTS != nil {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], *compressedTS)
		m.Fields = append(m.Fields, Field{Num: FieldNumTimestamp, Type: TypeUint32, Data: buf[:]})
	}
	d.out = append(d.out, m)
	return nil
}
