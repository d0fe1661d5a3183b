package core

// LogLine is a single line received from the live log stream.
type LogLine struct {
	TsUnixMs int64  `json:"ts_unix_ms"`
	Line     string `json:"line"`
}
