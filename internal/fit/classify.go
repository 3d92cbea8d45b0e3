package fit

import "time"

// Classification is what the metadata pass recovers from a file.
type Classification struct {
	FileType    uint8
	HasFileType bool
	Sport       uint8
	SubSport    uint8
	HasSport    bool
	StartTime   time.Time
	Elapsed     *float64
	Sessions    int
}

// IsActivity reports whether the file holds an activity recording.
func (c *Classification) IsActivity() bool {
	if c.HasFileType {
		return c.FileType == FileTypeActivity
	}
	return c.Sessions > 0
}

// Classify runs the metadata pass: the whole file is validated and walked,
// but only file_id, sport, session, activity and device_info messages are
// materialised.
func Classify(data []byte) (*Classification, error) {
	f, err := decode(data, isMetadata)
	if err != nil {
		return nil, err
	}
	c := &Classification{}
	if id, ok := f.FileID(); ok {
		c.FileType, c.HasFileType = id.Type, id.HasType
	}
	sessions := f.Sessions()
	c.Sessions = len(sessions)
	if len(sessions) > 0 {
		s := sessions[0]
		c.Sport, c.SubSport, c.HasSport = s.Sport, s.SubSport, s.HasSport
		c.StartTime = s.StartTime
		c.Elapsed = s.TotalElapsedTime
	}
	if sport, sub, ok := f.SportOf(); ok && !c.HasSport {
		c.Sport, c.SubSport, c.HasSport = sport, sub, true
	}
	return c, nil
}
