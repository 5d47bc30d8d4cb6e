// Package trace turns scheduler lifecycle transitions into an ordered,
// timestamped event stream and writes it to sinks.
//
// The scheduler calls the Emitter from a single goroutine, after each wave
// barrier, in sorted node order. The stream is therefore reproducible: two
// runs of the same plan at the same concurrency limit emit the same sequence
// of events and differ only in timestamps and durations.
package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Name identifies an event kind.
type Name string

const (
	RunStarted   Name = "RunStarted"
	StepStarted  Name = "StepStarted"
	StepFinished Name = "StepFinished"
	RunFinished  Name = "RunFinished"
)

// Event is one trace record. Time and Elapsed are presentation metadata and
// never influence scheduling.
type Event struct {
	Seq      int               `json:"seq"`
	Name     Name              `json:"event"`
	Time     time.Time         `json:"ts"`
	Elapsed  time.Duration     `json:"elapsed"`
	RunID    string            `json:"run_id"`
	NodeID   string            `json:"node_id,omitempty"`
	Wave     int               `json:"wave,omitempty"`
	Attempt  int               `json:"attempt,omitempty"`
	Status   string            `json:"status,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// TimeFormat is the ISO-8601 UTC layout used by Format.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Format renders e as one line without a trailing newline:
//
//	2026-01-02T15:04:05.123Z +12ms StepFinished run_id=r node_id=a wave=1 attempt=1 status=success duration_ms=3
func Format(e Event) string {
	var b strings.Builder
	b.WriteString(e.Time.UTC().Format(TimeFormat))
	fmt.Fprintf(&b, " +%dms %s", e.Elapsed.Milliseconds(), e.Name)
	writeFields(&b, e, true)
	return b.String()
}

// Shape renders events without timestamps, elapsed times or durations, for
// comparing the structure of two runs.
func Shape(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		var b strings.Builder
		b.WriteString(string(e.Name))
		writeFields(&b, e, false)
		out[i] = b.String()
	}
	return out
}

func writeFields(b *strings.Builder, e Event, withTiming bool) {
	kv := func(k, v string) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quote(v))
	}
	if e.RunID != "" && withTiming {
		kv("run_id", e.RunID)
	}
	if e.NodeID != "" {
		kv("node_id", e.NodeID)
	}
	if e.Wave > 0 {
		kv("wave", strconv.Itoa(e.Wave))
	}
	if e.Attempt > 0 {
		kv("attempt", strconv.Itoa(e.Attempt))
	}
	if e.Status != "" {
		kv("status", e.Status)
	}
	if e.Name == StepFinished && withTiming {
		kv("duration_ms", strconv.FormatInt(e.Duration.Milliseconds(), 10))
	}
	if e.Error != "" {
		kv("error", e.Error)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv(k, e.Fields[k])
	}
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}

func cloneEvent(e Event) Event {
	if e.Fields != nil {
		fields := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		e.Fields = fields
	}
	return e
}
