// Package reading turns the loosely typed sensor payload served by the
// device gateway into a fully numeric, defaulted Reading.
package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDeviceID = "ESP32_01"
	UnknownAQIText  = "Unknown"
)

// Raw is the payload as served. Every field may be a number, a string or
// missing; json.Number is used for numbers so nothing is lost in decoding.
type Raw struct {
	DeviceID  any `json:"device_id"`
	Timestamp any `json:"timestamp"`
	AQI       any `json:"AQI"`
	Humidity  any `json:"humidity"`
	MQ        any `json:"MQ"`
	PM1       any `json:"PM1"`
	PM10      any `json:"PM10"`
	PM25      any `json:"PM25"`
	PPM       any `json:"PPM"`
	Pressure  any `json:"Pressure"`
	Temp      any `json:"Temp"`
}

// Reading is one normalized snapshot. All numeric fields are finite.
type Reading struct {
	DeviceID  string  `json:"device_id"`
	Timestamp string  `json:"timestamp"`
	AQIValue  float64 `json:"aqi_value"`
	AQIText   string  `json:"aqi_text"`
	Humidity  float64 `json:"humidity"`
	MQ        float64 `json:"mq"`
	PM1       float64 `json:"pm1"`
	PM10      float64 `json:"pm10"`
	PM25      float64 `json:"pm25"`
	PPM       float64 `json:"ppm"`
	Pressure  float64 `json:"pressure"`
	Temp      float64 `json:"temp"`
}

// Decode parses a payload body. A JSON null yields an empty Raw; anything
// other than a single object is an error. Keys match case-sensitively.
func Decode(body []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Raw{}, fmt.Errorf("decode reading: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Raw{}, fmt.Errorf("decode reading: trailing data")
	}

	return Raw{
		DeviceID:  m["device_id"],
		Timestamp: m["timestamp"],
		AQI:       m["AQI"],
		Humidity:  m["humidity"],
		MQ:        m["MQ"],
		PM1:       m["PM1"],
		PM10:      m["PM10"],
		PM25:      m["PM25"],
		PPM:       m["PPM"],
		Pressure:  m["Pressure"],
		Temp:      m["Temp"],
	}, nil
}

// Normalize builds a Reading from raw. now is used when the payload carries
// no timestamp.
func Normalize(raw Raw, now time.Time) Reading {
	r := Reading{
		DeviceID:  stringOr(raw.DeviceID, DefaultDeviceID),
		Timestamp: stringOr(raw.Timestamp, now.Format(time.RFC3339)),
		Humidity:  ToNumber(raw.Humidity, 0),
		MQ:        ToNumber(raw.MQ, 0),
		PM1:       ToNumber(raw.PM1, 0),
		PM10:      ToNumber(raw.PM10, 0),
		PM25:      ToNumber(raw.PM25, 0),
		PPM:       ToNumber(raw.PPM, 0),
		Pressure:  ToNumber(raw.Pressure, 0),
		Temp:      ToNumber(raw.Temp, 0),
	}
	r.AQIValue, r.AQIText = normalizeAQI(raw.AQI)
	return r
}

// Raw converts r back into payload form. Normalize(r.Raw(), t) == r.
func (r Reading) Raw() Raw {
	return Raw{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		AQI:       r.aqiRaw(),
		Humidity:  r.Humidity,
		MQ:        r.MQ,
		PM1:       r.PM1,
		PM10:      r.PM10,
		PM25:      r.PM25,
		PPM:       r.PPM,
		Pressure:  r.Pressure,
		Temp:      r.Temp,
	}
}

func (r Reading) aqiRaw() any {
	if r.AQIText == UnknownAQIText && r.AQIValue == 0 {
		return nil
	}
	if r.AQIText == formatNumber(r.AQIValue) {
		return r.AQIValue
	}
	return r.AQIText
}

// AQILabel returns the device's own AQI text when it was not a plain
// number, e.g. "Moderate" or "Unknown".
func (r Reading) AQILabel() (string, bool) {
	if r.AQIText == "" || r.AQIText == formatNumber(r.AQIValue) {
		return "", false
	}
	return r.AQIText, true
}

// Time parses the reading timestamp. RFC 3339 (with or without zone) and
// unix seconds or milliseconds are accepted.
func (r Reading) Time() (time.Time, bool) {
	s := strings.TrimSpace(r.Timestamp)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

func stringOr(v any, fallback string) string {
	switch s := v.(type) {
	case nil:
		return fallback
	case string:
		if strings.TrimSpace(s) == "" {
			return fallback
		}
		return s
	case json.Number:
		return s.String()
	case float64:
		return formatNumber(s)
	default:
		return fmt.Sprint(s)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
