// ==============================================================================
// EVENT LOG - internal/eventlog/log.go
// ==============================================================================
package eventlog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"rtgsim/internal/domain"
)

// Log is the append-only, totally ordered record of everything the engine
// did. Seq is assigned densely on append; two identical runs must produce
// byte-identical serialized logs.
type Log struct {
	events []domain.Event
}

// New builds an empty log.
func New() *Log {
	return &Log{}
}

// Append assigns the next sequence number and stores the event.
func (l *Log) Append(ev domain.Event) domain.Event {
	ev.Seq = int64(len(l.events) + 1)
	l.events = append(l.events, ev)
	return ev
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	return len(l.events)
}

// Events returns the full ordered slice. Callers must not mutate it.
func (l *Log) Events() []domain.Event {
	return l.events
}

// Page returns events [offset, offset+limit) for API paging.
func (l *Log) Page(offset, limit int) []domain.Event {
	if offset < 0 || offset >= len(l.events) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(l.events) {
		end = len(l.events)
	}
	return l.events[offset:end]
}

// Since returns all events with Seq greater than seq.
func (l *Log) Since(seq int64) []domain.Event {
	if seq < 0 {
		seq = 0
	}
	if int(seq) >= len(l.events) {
		return nil
	}
	return l.events[seq:]
}

// MarshalLines renders the log as newline-delimited canonical JSON. Struct
// field order fixes the byte layout, so this is the determinism witness.
func (l *Log) MarshalLines() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range l.events {
		if err := enc.Encode(&l.events[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Checksum hashes the canonical serialization. Equal checksums across two
// runs of the same configuration is the byte-identity contract.
func (l *Log) Checksum() (string, error) {
	lines, err := l.MarshalLines()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(lines)
	return hex.EncodeToString(sum[:]), nil
}
