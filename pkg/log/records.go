package log

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Record is a structured log entry produced by a worker process
type Record map[string]interface{}

// recordPattern matches a line that holds exactly one JSON object
var recordPattern = regexp.MustCompile(`^{.+}$`)

// reserved keys are consumed by EmitTo and not copied as fields
var reserved = map[string]bool{
	"level":   true,
	"msg":     true,
	"message": true,
	"v":       true,
}

// ParseRecords splits text on line breaks and returns every line that parses
// as a single-line JSON object. Malformed lines are dropped.
func ParseRecords(text string) []Record {
	var records []Record
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !recordPattern.MatchString(line) {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// EmitTo re-emits a worker record using the given logger
func EmitTo(l zerolog.Logger, rec Record) {
	e := l.WithLevel(recordLevel(rec["level"]))
	if e == nil {
		return
	}

	for k, v := range rec {
		if reserved[k] {
			continue
		}
		// keep the coordinator's own timestamp authoritative
		if k == zerolog.TimestampFieldName {
			k = "worker_time"
		}
		e = e.Interface(k, v)
	}

	msg, _ := rec["msg"].(string)
	if msg == "" {
		msg, _ = rec["message"].(string)
	}
	e.Str("origin", "worker").Msg(msg)
}

// EmitLines re-emits every record found in text through l and returns how
// many were found. Both the /log endpoint and SSH output forwarding use it.
func EmitLines(l zerolog.Logger, text string) int {
	records := ParseRecords(text)
	for _, rec := range records {
		EmitTo(l, rec)
	}
	return len(records)
}

// recordLevel understands both numeric (10..60) and named levels
func recordLevel(v interface{}) zerolog.Level {
	switch lvl := v.(type) {
	case float64:
		switch {
		case lvl >= 60:
			return zerolog.FatalLevel
		case lvl >= 50:
			return zerolog.ErrorLevel
		case lvl >= 40:
			return zerolog.WarnLevel
		case lvl >= 30:
			return zerolog.InfoLevel
		case lvl >= 20:
			return zerolog.DebugLevel
		default:
			return zerolog.TraceLevel
		}
	case string:
		if parsed, err := zerolog.ParseLevel(lvl); err == nil && parsed != zerolog.NoLevel {
			return parsed
		}
	}
	return zerolog.InfoLevel
}
