// Package logfile matches uploaded .log files to test records through the
// filename grammar the stations emit: 8-digit date, dash, 6-digit time,
// dash, then the serial up to the next bracket or dot.
package logfile

import (
	"regexp"
	"time"
)

// Example: 20250920-143000-CH0012345[ST1].log
var fileNameRe = regexp.MustCompile(`(\d{8})-(\d{6})-([^\[\].]+)`)

// Match is the identity extracted from a log filename.
type Match struct {
	Serial    string
	Date      string // YYYYMMDD as written in the filename
	Time      string // HHMMSS as written in the filename
	Timestamp time.Time
}

// Key is the correlation key shared by log files and the records that look
// them up: serial_YYYYMMDDHHMMSS.
func (m Match) Key() string {
	return m.Serial + "_" + m.Date + m.Time
}

// Parse extracts the serial and timestamp from a filename. The second
// return is false when the name does not follow the grammar; that is not an
// error, the file simply has no correlatable identity.
func Parse(fileName string) (Match, bool) {
	sub := fileNameRe.FindStringSubmatch(fileName)
	if sub == nil {
		return Match{}, false
	}
	m := Match{Date: sub[1], Time: sub[2], Serial: sub[3]}
	if ts, err := time.ParseInLocation("20060102150405", m.Date+m.Time, time.Local); err == nil {
		m.Timestamp = ts
	}
	return m, true
}
