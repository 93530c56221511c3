package mcrecover

import (
	"time"
)

// gcnEpoch is the reference point of all GameCube timestamps.
var gcnEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// gcnTicksPerSecond is the GameCube timer rate (bus clock / 4).
const gcnTicksPerSecond = 40500000

// ParseGcnTime reads a directory entry modification time:
//  The last modified field holds the number of seconds since
//  2000-01-01 00:00:00 in the console's local time.
// The console time zone is unknown so the result is in UTC.
func ParseGcnTime(seconds uint32) time.Time {
	return gcnEpoch.Add(time.Duration(seconds) * time.Second)
}

// GcnTime converts t back to seconds since 2000-01-01.
// Times before the epoch, including time.Time{}, result in 0.
func GcnTime(t time.Time) uint32 {
	if t.Before(gcnEpoch) {
		return 0
	}
	return uint32(t.Sub(gcnEpoch) / time.Second)
}

// ParseOSTime reads the format time of a card header, which is stored in
// timer ticks since 2000-01-01.
func ParseOSTime(ticks uint64) time.Time {
	seconds := ticks / gcnTicksPerSecond
	rest := ticks % gcnTicksPerSecond
	nanos := rest * uint64(time.Second) / gcnTicksPerSecond
	return gcnEpoch.Add(time.Duration(seconds)*time.Second + time.Duration(nanos))
}

// OSTime converts t back to timer ticks since 2000-01-01.
func OSTime(t time.Time) uint64 {
	if t.Before(gcnEpoch) {
		return 0
	}
	d := t.Sub(gcnEpoch)
	return uint64(d/time.Second)*gcnTicksPerSecond + uint64(d%time.Second)*gcnTicksPerSecond/uint64(time.Second)
}

// ParseBCDTime reads a Dreamcast VMU timestamp:
//  8 bytes of packed BCD: century, year, month, day, hour, minute,
//  second and day of week (0 = Monday).
// It returns time.Time{} if any digit is not a decimal digit or the month
// or day is 0, so time.Time.IsZero() can be used to detect broken values.
// The day of week is ignored.
func ParseBCDTime(raw [8]byte) time.Time {
	var v [7]int
	for i := range v {
		hi, lo := int(raw[i]>>4), int(raw[i]&0x0F)
		if hi > 9 || lo > 9 {
			return time.Time{}
		}
		v[i] = hi*10 + lo
	}

	if v[2] == 0 || v[3] == 0 {
		return time.Time{}
	}

	return time.Date(v[0]*100+v[1], time.Month(v[2]), v[3], v[4], v[5], v[6], 0, time.UTC)
}

// BCDTime converts t to a VMU timestamp.
func BCDTime(t time.Time) [8]byte {
	bcd := func(v int) byte {
		return byte(v/10)<<4 | byte(v%10)
	}

	var raw [8]byte
	if t.IsZero() {
		return raw
	}

	raw[0] = bcd(t.Year() / 100)
	raw[1] = bcd(t.Year() % 100)
	raw[2] = bcd(int(t.Month()))
	raw[3] = bcd(t.Day())
	raw[4] = bcd(t.Hour())
	raw[5] = bcd(t.Minute())
	raw[6] = bcd(t.Second())
	raw[7] = byte((int(t.Weekday()) + 6) % 7)
	return raw
}
