package fat

import (
	"time"
)

// FAT timestamps are split into a 16 bit date word (days since the DOS epoch
// of 1980-01-01, packed as year/month/day) and a 16 bit time word with a
// granularity of two seconds. Creation times additionally carry a
// tenth-of-second byte counting 10ms units from 0 to 199.

// ParseDate decodes a FAT date word:
//
//	bits 0-4  day of month, 1-31
//	bits 5-8  month of year, 1-12
//	bits 9-15 years since 1980, 0-127
//
// The zero value time.Time{} is returned for the unspecified day or month
// value 0, so time.Time.IsZero() can be used on the result.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT time word:
//
//	bits 0-4   two-second count, 0-29
//	bits 5-10  minutes, 0-59
//	bits 11-15 hours, 0-23
//
// The result always has the date January 1, year 1. A time word that
// overflows the day (hours above 23, or minutes or seconds that carry past
// 23:59) yields 23:59:59; smaller overflows roll over into the next minute
// or hour.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// ParseDateTime combines a date and a time word, adding tenths as 10ms
// units, in the given location.
func ParseDateTime(date, timeWord uint16, tenths byte, loc *time.Location) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(timeWord)

	extra := time.Duration(tenths) * 10 * time.Millisecond
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc).Add(extra)
}

// EncodeDate packs t into a FAT date word. Times before the DOS epoch
// encode as the epoch, times after 2107 as the maximum.
func EncodeDate(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	year := t.Year()
	if year < 1980 {
		return 1<<5 | 1
	}
	if year > 2107 {
		return 127<<9 | 12<<5 | 31
	}
	return uint16(year-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime packs t into a FAT time word, truncating to two seconds.
func EncodeTime(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// EncodeTenths returns the 10ms remainder that does not fit EncodeTime.
func EncodeTenths(t time.Time) byte {
	if t.IsZero() {
		return 0
	}
	ms := (t.Second()%2)*1000 + t.Nanosecond()/1e6
	return byte(ms / 10)
}
