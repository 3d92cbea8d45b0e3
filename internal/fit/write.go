package fit

// WriteFileID appends a file_id message.
func (e *Encoder) WriteFileID(id FileID) {
	vals := []Value{E(fileIDType, id.Type), U16(fileIDManufacture, id.Manufacturer), U16(fileIDProduct, id.Product)}
	if !id.TimeCreated.IsZero() {
		vals = append(vals, DateTime(fileIDTimeCreated, id.TimeCreated))
	}
	e.Message(MesgFileID, vals...)
}

// WriteSport appends a sport message.
func (e *Encoder) WriteSport(sport, sub uint8) {
	e.Message(MesgSport, E(sportSport, sport), E(sportSubSport, sub))
}

// WriteRecord appends a record message. Nil fields are omitted.
func (e *Encoder) WriteRecord(r Record) {
	vals := []Value{DateTime(FieldNumTimestamp, r.Timestamp)}
	vals = appendScaled(vals, recordHeartRate, TypeUint8, r.HeartRate, 1, 0)
	vals = appendScaled(vals, recordCadence, TypeUint8, r.Cadence, 1, 0)
	vals = appendScaled(vals, recordDistance, TypeUint32, r.Distance, 100, 0)
	vals = appendScaled(vals, recordEnhancedSpeed, TypeUint32, r.Speed, 1000, 0)
	vals = appendScaled(vals, recordPower, TypeUint16, r.Power, 1, 0)
	vals = appendScaled(vals, recordEnhancedAltitude, TypeUint32, r.Altitude, 5, 500)
	e.Message(MesgRecord, vals...)
}

// WriteSession appends a session message. Nil fields are omitted.
func (e *Encoder) WriteSession(s Session) {
	vals := []Value{DateTime(FieldNumTimestamp, s.Timestamp), DateTime(sessionStartTime, s.StartTime)}
	if s.HasSport {
		vals = append(vals, E(sessionSport, s.Sport), E(sessionSubSport, s.SubSport))
	}
	vals = appendScaled(vals, sessionTotalElapsed, TypeUint32, s.TotalElapsedTime, 1000, 0)
	vals = appendScaled(vals, sessionTotalTimer, TypeUint32, s.TotalTimerTime, 1000, 0)
	vals = appendScaled(vals, sessionTotalDistance, TypeUint32, s.TotalDistance, 100, 0)
	vals = appendScaled(vals, sessionTotalCalories, TypeUint16, s.TotalCalories, 1, 0)
	vals = appendScaled(vals, sessionEnhancedAvgSpeed, TypeUint32, s.AvgSpeed, 1000, 0)
	vals = appendScaled(vals, sessionMaxSpeed, TypeUint16, s.MaxSpeed, 1000, 0)
	vals = appendScaled(vals, sessionAvgHeartRate, TypeUint8, s.AvgHeartRate, 1, 0)
	vals = appendScaled(vals, sessionMaxHeartRate, TypeUint8, s.MaxHeartRate, 1, 0)
	vals = appendScaled(vals, sessionTotalAscent, TypeUint16, s.TotalAscent, 1, 0)
	vals = appendScaled(vals, sessionTotalDescent, TypeUint16, s.TotalDescent, 1, 0)
	e.Message(MesgSession, vals...)
}

func appendScaled(vals []Value, num byte, typ BaseType, v *float64, scale, offset float64) []Value {
	if v == nil {
		return vals
	}
	return append(vals, Scaled(num, typ, *v, scale, offset))
}
