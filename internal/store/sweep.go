package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
)

// ErrNotFound is returned when a sweep id is unknown.
var ErrNotFound = errors.New("sweep not found")

// Sweep is one stored sweep: a protocol, its parameters and one result per
// p value.
type Sweep struct {
	ID            string
	Seq           int64
	ProtocolName  string
	ProtocolHash  string
	Source        string
	Params        Params
	ResultsHash   string
	EngineVersion string
	IRVersion     string
	Results       []montecarlo.Result
}

// NewSweep assembles a sweep record for protocol and its results. The id and
// seq are assigned by SaveSweep.
func NewSweep(source string, protocol *ir.ProtocolIR, params Params, results []montecarlo.Result) (*Sweep, error) {
	hash, err := ir.ProtocolHash(protocol)
	if err != nil {
		return nil, fmt.Errorf("new sweep: %w", err)
	}
	return &Sweep{
		ProtocolName:  protocol.Name,
		ProtocolHash:  hash,
		Source:        source,
		Params:        params,
		EngineVersion: engine.Version,
		IRVersion:     ir.Version,
		Results:       results,
	}, nil
}

// SaveSweep writes sw and its results in one transaction. It fills in ID
// (when empty), Seq and ResultsHash.
func (s *Store) SaveSweep(ctx context.Context, sw *Sweep) error {
	if len(sw.Results) != len(sw.Params.PValues) {
		return fmt.Errorf("save sweep: %d results for %d p values", len(sw.Results), len(sw.Params.PValues))
	}
	paramsJSON, err := marshalParams(sw.Params)
	if err != nil {
		return fmt.Errorf("save sweep: %w", err)
	}
	resultsHash, err := ResultsHash(sw.Results)
	if err != nil {
		return fmt.Errorf("save sweep: %w", err)
	}
	resultsJSON := make([]string, len(sw.Results))
	for i, r := range sw.Results {
		if resultsJSON[i], err = marshalResult(r); err != nil {
			return fmt.Errorf("save sweep: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save sweep: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sweeps`).Scan(&seq); err != nil {
		return fmt.Errorf("save sweep: next seq: %w", err)
	}
	id := sw.ID
	if id == "" {
		id = s.ids.Generate()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps
		(id, seq, protocol_name, protocol_hash, source, params, results_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		sw.ProtocolName,
		sw.ProtocolHash,
		sw.Source,
		paramsJSON,
		resultsHash,
		sw.EngineVersion,
		sw.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("save sweep: insert sweep: %w", err)
	}

	for i, r := range sw.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO results (sweep_id, idx, p, result)
			VALUES (?, ?, ?, ?)
		`, id, i, r.P, resultsJSON[i])
		if err != nil {
			return fmt.Errorf("save sweep: insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save sweep: commit: %w", err)
	}
	sw.ID = id
	sw.Seq = seq
	sw.ResultsHash = resultsHash
	return nil
}

// ReadSweep returns the sweep with id and its results.
// Returns ErrNotFound if there is none.
func (s *Store) ReadSweep(ctx context.Context, id string) (*Sweep, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, protocol_name, protocol_hash, source, params, results_hash, engine_version, ir_version
		FROM sweeps
		WHERE id = ?
	`, id)
	sw, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if sw.Results, err = s.readResults(ctx, sw.ID); err != nil {
		return nil, err
	}
	return sw, nil
}

// ListSweeps returns every sweep without its results, oldest first.
func (s *Store) ListSweeps(ctx context.Context) ([]*Sweep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, protocol_name, protocol_hash, source, params, results_hash, engine_version, ir_version
		FROM sweeps
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}
	defer rows.Close()

	sweeps := []*Sweep{}
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweeps: %w", err)
	}
	return sweeps, nil
}

// FindSweepsByProtocol returns the ids of sweeps run on a protocol with the
// given content hash, oldest first.
func (s *Store) FindSweepsByProtocol(ctx context.Context, protocolHash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sweeps
		WHERE protocol_hash = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, protocolHash)
	if err != nil {
		return nil, fmt.Errorf("query sweeps by protocol: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sweep id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep ids: %w", err)
	}
	return ids, nil
}

func (s *Store) readResults(ctx context.Context, sweepID string) ([]montecarlo.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result FROM results
		WHERE sweep_id = ?
		ORDER BY idx ASC
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []montecarlo.Result{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r, err := unmarshalResult(data)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSweep(row rowScanner) (*Sweep, error) {
	var (
		sw         Sweep
		paramsJSON string
	)
	err := row.Scan(
		&sw.ID,
		&sw.Seq,
		&sw.ProtocolName,
		&sw.ProtocolHash,
		&sw.Source,
		&paramsJSON,
		&sw.ResultsHash,
		&sw.EngineVersion,
		&sw.IRVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan sweep: %w", err)
	}
	if sw.Params, err = unmarshalParams(paramsJSON); err != nil {
		return nil, err
	}
	return &sw, nil
}
