package model

import (
	"fmt"
	"time"
)

// LocalTime formats as "YYYY-MM-DD HH:MM:SS" in the local zone when marshalled.
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Local().Format(timeFormat))
	return []byte(formatted), nil
}

// String renders the same layout used in JSON.
func (t LocalTime) String() string {
	return time.Time(t).Local().Format(timeFormat)
}
