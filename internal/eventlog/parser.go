// Package eventlog reads interaction events from JSONL logs, one event per
// line.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lazypower/attention/internal/duration"
	"github.com/lazypower/attention/internal/event"
)

// Line is the on-disk shape of one event. Dates are RFC 3339 or the
// duration wire format ("2015-06-24 04:59:06.0 GMT"). A missing end date
// means the event is instantaneous and a missing interest means 1.
type Line struct {
	Kind          event.Kind `json:"kind"`
	StructureKind string     `json:"structure_kind"`
	Handle        string     `json:"handle"`
	OriginID      string     `json:"origin_id"`
	Navigation    string     `json:"navigation"`
	Delta         string     `json:"delta"`
	Interest      *float64   `json:"interest"`
	Date          string     `json:"date"`
	EndDate       string     `json:"end_date"`
}

// Result holds the events of a log and how many lines were dropped.
type Result struct {
	Events  []event.Event
	Skipped int
}

// ParseFile reads a JSONL event log from disk.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a JSONL event log. Blank lines are ignored and malformed
// lines are skipped and counted.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := ParseLine([]byte(line))
		if err != nil {
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return res, nil
}

// ParseLines parses log content from a string.
func ParseLines(content string) (*Result, error) {
	return Parse(strings.NewReader(content))
}

// ParseLine decodes a single log line into a validated event.
func ParseLine(b []byte) (event.Event, error) {
	var l Line
	if err := json.Unmarshal(b, &l); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if l.Date == "" {
		return event.Event{}, errors.New("event without date")
	}
	date, err := parseTime(l.Date)
	if err != nil {
		return event.Event{}, err
	}
	var end time.Time
	if l.EndDate != "" {
		if end, err = parseTime(l.EndDate); err != nil {
			return event.Event{}, err
		}
	}
	interest := 1.0
	if l.Interest != nil {
		interest = *l.Interest
	}
	return event.New(l.Kind, l.StructureKind, l.Handle, l.OriginID, l.Navigation, l.Delta, interest, date, end)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return duration.DefaultCodec.ParseTime(s)
}

// Encode writes events as JSONL in the format Parse reads.
func Encode(w io.Writer, events []event.Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		interest := e.InterestContribution
		l := Line{
			Kind:          e.Kind,
			StructureKind: e.StructureKind,
			Handle:        e.Handle,
			OriginID:      e.OriginID,
			Navigation:    e.NavigatedRelation,
			Delta:         e.Delta,
			Interest:      &interest,
			Date:          e.Date.Format(time.RFC3339Nano),
			EndDate:       e.EndDate.Format(time.RFC3339Nano),
		}
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}
