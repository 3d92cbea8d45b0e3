package fit

import "time"

// fitEpoch is 1989-12-31T00:00:00Z, the zero of FIT date_time values.
const fitEpoch int64 = 631065600

// minAbsoluteTime separates absolute date_time values from device-relative
// ones.
const minAbsoluteTime = 0x10000000

// File types (file_id.type).
const FileTypeActivity uint8 = 4

// Sport enum values.
const (
	SportGeneric          uint8 = 0
	SportRunning          uint8 = 1
	SportCycling          uint8 = 2
	SportSwimming         uint8 = 5
	SportTraining         uint8 = 10
	SportWalking          uint8 = 11
	SportRowing           uint8 = 15
	SportHiking           uint8 = 17
	SportFitnessEquipment uint8 = 4
)

// Sub sport enum values used for classification.
const (
	SubSportStrengthTraining uint8 = 20
	SubSportIndoorRowing     uint8 = 14
)

// Field numbers of the messages read by this package.
const (
	fileIDType        byte = 0
	fileIDManufacture byte = 1
	fileIDProduct     byte = 2
	fileIDTimeCreated byte = 4

	sportSport    byte = 0
	sportSubSport byte = 1

	sessionStartTime        byte = 2
	sessionSport            byte = 5
	sessionSubSport         byte = 6
	sessionTotalElapsed     byte = 7
	sessionTotalTimer       byte = 8
	sessionTotalDistance    byte = 9
	sessionTotalCalories    byte = 11
	sessionAvgSpeed         byte = 14
	sessionMaxSpeed         byte = 15
	sessionAvgHeartRate     byte = 16
	sessionMaxHeartRate     byte = 17
	sessionAvgPower         byte = 20
	sessionMaxPower         byte = 21
	sessionTotalAscent      byte = 22
	sessionTotalDescent     byte = 23
	sessionEnhancedAvgSpeed byte = 124

	recordAltitude         byte = 2
	recordHeartRate        byte = 3
	recordCadence          byte = 4
	recordDistance         byte = 5
	recordSpeed            byte = 6
	recordPower            byte = 7
	recordEnhancedSpeed    byte = 73
	recordEnhancedAltitude byte = 78
)

// FileID is the typed view of a file_id message.
type FileID struct {
	Type         uint8
	HasType      bool
	Manufacturer uint16
	Product      uint16
	TimeCreated  time.Time
}

// Session is the typed view of a session message. Pointer fields are nil
// when the device did not record them.
type Session struct {
	Timestamp        time.Time
	StartTime        time.Time
	Sport            uint8
	HasSport         bool
	SubSport         uint8
	TotalElapsedTime *float64 // s
	TotalTimerTime   *float64 // s
	TotalDistance    *float64 // m
	TotalCalories    *float64 // kcal
	AvgSpeed         *float64 // m/s
	MaxSpeed         *float64 // m/s
	AvgHeartRate     *float64 // bpm
	MaxHeartRate     *float64 // bpm
	AvgPower         *float64 // W
	MaxPower         *float64 // W
	TotalAscent      *float64 // m
	TotalDescent     *float64 // m
}

// Record is the typed view of a record (per-sample) message.
type Record struct {
	Timestamp time.Time
	HeartRate *float64
	Cadence   *float64
	Distance  *float64 // m
	Speed     *float64 // m/s
	Power     *float64 // W
	Altitude  *float64 // m
}

func (m *Message) value(num byte) (float64, bool) {
	f, ok := m.Field(num)
	if !ok {
		return 0, false
	}
	return f.Float()
}

func (m *Message) scaled(num byte, scale, offset float64) *float64 {
	v, ok := m.value(num)
	if !ok {
		return nil
	}
	v = v/scale - offset
	return &v
}

func (m *Message) enum(num byte) (uint8, bool) {
	v, ok := m.value(num)
	if !ok {
		return 0, false
	}
	return uint8(v), true
}

// Time reads a date_time field. Device-relative values are reported as
// absent.
func (m *Message) Time(num byte) (time.Time, bool) {
	v, ok := m.value(num)
	if !ok || v < minAbsoluteTime {
		return time.Time{}, false
	}
	return time.Unix(fitEpoch+int64(v), 0).UTC(), true
}

// FileIDOf interprets a file_id message.
func FileIDOf(m *Message) FileID {
	var id FileID
	id.Type, id.HasType = m.enum(fileIDType)
	if v, ok := m.value(fileIDManufacture); ok {
		id.Manufacturer = uint16(v)
	}
	if v, ok := m.value(fileIDProduct); ok {
		id.Product = uint16(v)
	}
	id.TimeCreated, _ = m.Time(fileIDTimeCreated)
	return id
}

// SessionOf interprets a session message.
func SessionOf(m *Message) Session {
	s := Session{
		TotalElapsedTime: m.scaled(sessionTotalElapsed, 1000, 0),
		TotalTimerTime:   m.scaled(sessionTotalTimer, 1000, 0),
		TotalDistance:    m.scaled(sessionTotalDistance, 100, 0),
		TotalCalories:    m.scaled(sessionTotalCalories, 1, 0),
		AvgSpeed:         m.scaled(sessionEnhancedAvgSpeed, 1000, 0),
		MaxSpeed:         m.scaled(sessionMaxSpeed, 1000, 0),
		AvgHeartRate:     m.scaled(sessionAvgHeartRate, 1, 0),
		MaxHeartRate:     m.scaled(sessionMaxHeartRate, 1, 0),
		AvgPower:         m.scaled(sessionAvgPower, 1, 0),
		MaxPower:         m.scaled(sessionMaxPower, 1, 0),
		TotalAscent:      m.scaled(sessionTotalAscent, 1, 0),
		TotalDescent:     m.scaled(sessionTotalDescent, 1, 0),
	}
	if s.AvgSpeed == nil {
		s.AvgSpeed = m.scaled(sessionAvgSpeed, 1000, 0)
	}
	s.Timestamp, _ = m.Time(FieldNumTimestamp)
	s.StartTime, _ = m.Time(sessionStartTime)
	s.Sport, s.HasSport = m.enum(sessionSport)
	s.SubSport, _ = m.enum(sessionSubSport)
	return s
}

// RecordOf interprets a record message. Enhanced speed and altitude take
// precedence over the 16-bit variants.
func RecordOf(m *Message) Record {
	r := Record{
		HeartRate: m.scaled(recordHeartRate, 1, 0),
		Cadence:   m.scaled(recordCadence, 1, 0),
		Distance:  m.scaled(recordDistance, 100, 0),
		Speed:     m.scaled(recordEnhancedSpeed, 1000, 0),
		Power:     m.scaled(recordPower, 1, 0),
		Altitude:  m.scaled(recordEnhancedAltitude, 5, 500),
	}
	if r.Speed == nil {
		r.Speed = m.scaled(recordSpeed, 1000, 0)
	}
	if r.Altitude == nil {
		r.Altitude = m.scaled(recordAltitude, 5, 500)
	}
	r.Timestamp, _ = m.Time(FieldNumTimestamp)
	return r
}

// Sessions returns the typed session messages of f.
func (f *File) Sessions() []Session {
	ms := f.Filter(MesgSession)
	out := make([]Session, len(ms))
	for i, m := range ms {
		out[i] = SessionOf(m)
	}
	return out
}

// Records returns the typed record messages of f.
func (f *File) Records() []Record {
	ms := f.Filter(MesgRecord)
	out := make([]Record, len(ms))
	for i, m := range ms {
		out[i] = RecordOf(m)
	}
	return out
}

// FileID returns the first file_id message of f.
func (f *File) FileID() (FileID, bool) {
	ms := f.Filter(MesgFileID)
	if len(ms) == 0 {
		return FileID{}, false
	}
	return FileIDOf(ms[0]), true
}

// SportOf returns the sport and sub sport from the first sport message.
func (f *File) SportOf() (sport, sub uint8, ok bool) {
	ms := f.Filter(MesgSport)
	if len(ms) == 0 {
		return 0, 0, false
	}
	sport, ok = ms[0].enum(sportSport)
	sub, _ = ms[0].enum(sportSubSport)
	return sport, sub, ok
}
