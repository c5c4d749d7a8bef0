package fmi

import (
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"weekcast/internal/weather"
)

// WFS XML types. Tags without a namespace match any namespace; the xlink
// href attribute needs the full URI.

type featureCollection struct {
	XMLName xml.Name `xml:"FeatureCollection"`
	Members []member `xml:"member"`
}

type member struct {
	Observation pointTimeSeries `xml:"PointTimeSeriesObservation"`
}

type pointTimeSeries struct {
	ObservedProperty observedProperty `xml:"observedProperty"`
	Result           tsResult         `xml:"result"`
}

type observedProperty struct {
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

type tsResult struct {
	TimeSeries measurementTimeSeries `xml:"MeasurementTimeseries"`
}

type measurementTimeSeries struct {
	Points []measurementPoint `xml:"point"`
}

type measurementPoint struct {
	TVP timeValuePair `xml:"MeasurementTVP"`
}

type timeValuePair struct {
	Time  string `xml:"time"`
	Value string `xml:"value"`
}

type dayBucket struct {
	temps   []float64
	winds   []float64
	precip  *float64
	symbols []float64
}

// ParseDailyForecast aggregates an FMI hourly point forecast into days that
// start at local midnight in tz, and aligns them to window. Slots for days
// without any hourly value are nil.
func ParseDailyForecast(data []byte, tz *time.Location, window []int64) ([]*weather.DayWeather, error) {
	var fc featureCollection
	if err := xml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal WFS forecast: %w", err)
	}

	days := make(map[int64]*dayBucket)
	bucket := func(t time.Time) *dayBucket {
		key := weather.MidnightTimestamp(t, tz)
		b, ok := days[key]
		if !ok {
			b = &dayBucket{}
			days[key] = b
		}
		return b
	}

	for _, m := range fc.Members {
		param := extractParam(m.Observation.ObservedProperty.Href)
		for _, pt := range m.Observation.Result.TimeSeries.Points {
			t, err := time.Parse(time.RFC3339, pt.TVP.Time)
			if err != nil {
				continue
			}
			val := parseFloat(pt.TVP.Value)
			if val == nil {
				continue
			}
			switch strings.ToLower(param) {
			case "temperature":
				b := bucket(t)
				b.temps = append(b.temps, *val)
			case "windspeedms":
				b := bucket(t)
				b.winds = append(b.winds, *val)
			case "precipitation1h":
				b := bucket(t)
				sum := *val
				if b.precip != nil {
					sum += *b.precip
				}
				b.precip = &sum
			case "weathersymbol3":
				b := bucket(t)
				b.symbols = append(b.symbols, *val)
			}
		}
	}

	slots := make([]*weather.DayWeather, len(window))
	for i, ts := range window {
		b, ok := days[ts]
		if !ok {
			continue
		}
		slots[i] = b.dayWeather(ts)
	}
	return slots, nil
}

func (b *dayBucket) dayWeather(ts int64) *weather.DayWeather {
	d := &weather.DayWeather{Timestamp: ts, PrecipMM: b.precip}
	if len(b.temps) > 0 {
		hi, lo := slices.Max(b.temps), slices.Min(b.temps)
		d.TempHigh = &hi
		d.TempLow = &lo
	}
	if len(b.winds) > 0 {
		avg := 0.0
		for _, w := range b.winds {
			avg += w
		}
		avg /= float64(len(b.winds))
		d.WindSpeed = &avg
	}
	if len(b.symbols) > 0 {
		sorted := slices.Clone(b.symbols)
		slices.Sort(sorted)
		symbol := strconv.Itoa(int(sorted[len(sorted)/2]))
		d.Symbol = &symbol
	}
	return d
}

func extractParam(href string) string {
	if i := strings.Index(href, "?"); i >= 0 {
		href = href[i+1:]
	}
	for _, part := range strings.Split(href, "&") {
		if strings.HasPrefix(part, "param=") {
			return strings.TrimPrefix(part, "param=")
		}
	}
	parts := strings.Split(href, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return ""
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return &v
}
