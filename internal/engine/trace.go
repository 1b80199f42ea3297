package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/consim/internal/compiler"
)

// Stage names the part of a run a RoundRecord describes.
type Stage string

const (
	StageInit  Stage = "init"
	StageRound Stage = "round"
	StageEnd   Stage = "end"
)

// RoundRecord is the committed outcome of one round.
//
// Round is 0 for initialization and rounds+1 for the END phase. Values are
// the committed states, index id-1. Delivered lists the messages that
// arrived, in sender then receiver order.
type RoundRecord struct {
	Stage       Stage              `json:"stage"`
	Round       int                `json:"round"`
	Values      []float64          `json:"values"`
	Delivered   []compiler.Message `json:"delivered,omitempty"`
	Discrepancy float64            `json:"discrepancy"`
}

// TraceSink receives round records as a run progresses. Records must not be
// retained past the call unless copied; the engine passes fresh slices.
type TraceSink interface {
	Record(rec RoundRecord)
}

// RecordingSink keeps every record in memory.
type RecordingSink struct {
	mu      sync.Mutex
	records []RoundRecord
}

func (s *RecordingSink) Record(rec RoundRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a copy of everything recorded so far.
func (s *RecordingSink) Records() []RoundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// MultiSink forwards every record to each sink in order.
type MultiSink []TraceSink

func (m MultiSink) Record(rec RoundRecord) {
	for _, s := range m {
		s.Record(rec)
	}
}

// LogSink writes each record to a logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(rec RoundRecord) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	logger.Debug("round committed",
		"stage", rec.Stage,
		"round", rec.Round,
		"values", rec.Values,
		"delivered", len(rec.Delivered),
		"discrepancy", rec.Discrepancy,
	)
}

type discardSink struct{}

func (discardSink) Record(RoundRecord) {}
