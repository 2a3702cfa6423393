package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fibtrader/internal/strategy"
)

// Decision is one line of the audit trail: a symbol's evaluation in a cycle
// and what settlement did with it.
type Decision struct {
	RunID        string             `json:"run_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Symbol       string             `json:"symbol"`
	Price        float64            `json:"price,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Intent       strategy.Action    `json:"intent,omitempty"`
	IntentQty    int                `json:"intent_qty,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Result       string             `json:"result"`
	RejectReason string             `json:"reject_reason,omitempty"`
	TradeID      string             `json:"trade_id,omitempty"`
	Shares       int                `json:"shares,omitempty"`
	FillPrice    string             `json:"fill_price,omitempty"`
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	log    zerolog.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, log zerolog.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log.With().Str("component", "decisions").Logger(),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	if d == nil {
		return ""
	}
	return d.runID
}

// Append writes one decision. A nil logger discards it.
func (d *DecisionLogger) Append(decision Decision) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal decision")
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error().Err(err).Msg("failed to write decision")
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error().Err(err).Msg("failed to flush decision log")
	}
}

func (d *DecisionLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
