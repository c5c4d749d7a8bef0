package weather

import "time"

const (
	DaysPerWeek   = 7
	SecondsPerDay = 86400
)

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Context scopes a DailyManager to one location and timezone. A copy taken
// before an async call is compared against the live value on completion.
type Context struct {
	Location Coordinates
	Timezone *time.Location
}

func (c Context) Equal(other Context) bool {
	return c.Location == other.Location && timezoneName(c.Timezone) == timezoneName(other.Timezone)
}

func timezoneName(tz *time.Location) string {
	if tz == nil {
		return ""
	}
	return tz.String()
}

// DayWeather is the forecast for one day, keyed by the unix timestamp of
// that day's local midnight.
type DayWeather struct {
	Timestamp int64
	TempHigh  *float64
	TempLow   *float64
	WindSpeed *float64
	PrecipMM  *float64
	Symbol    *string
}

// HourlyContext identifies one day of the window for an hourly drill-down.
type HourlyContext struct {
	Location  Coordinates
	Timezone  *time.Location
	Timestamp int64
}
