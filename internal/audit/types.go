// Package audit records what the service did without recording what it
// saw: events carry per-type counts, rule ids and outcomes, never the
// detected values or the text itself.
package audit

import (
	"context"
	"time"
)

// Kind names the operation an event describes
type Kind string

const (
	KindScan         Kind = "scan"
	KindMask         Kind = "mask"
	KindRestore      Kind = "restore"
	KindRule         Kind = "rule"
	KindShieldBegin  Kind = "shield_begin"
	KindShieldFinish Kind = "shield_finish"
	KindBatch        Kind = "batch"
)

// Event is one audited operation
type Event struct {
	Kind      Kind           `json:"kind"`
	RequestID string         `json:"requestId,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	RuleID    string         `json:"ruleId,omitempty"`
	Outcome   string         `json:"outcome"`
	Duration  time.Duration  `json:"duration"`
}

// Entry is a stored event
type Entry struct {
	ID        int64     `json:"id"`
	Event     Event     `json:"event"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder persists audit events
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Nop discards every event
type Nop struct{}

// Record implements Recorder
func (Nop) Record(context.Context, Event) error { return nil }

// Recent implements Recorder
func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// Close implements Recorder
func (Nop) Close() error { return nil }
