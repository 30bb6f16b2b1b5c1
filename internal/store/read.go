package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Session is a journaled engine session.
type Session struct {
	ID            string
	EngineVersion string
	IRVersion     string
	Ended         bool
	Summary       ir.SessionSummary
}

// ListSessions returns every session, ordered by id.
// Session ids are UUIDv7 in production, so id order is creation order.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, engine_version, ir_version, ended, COALESCE(summary, '')
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session or ErrSessionNotFound.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, engine_version, ir_version, ended, COALESCE(summary, '')
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("read session %s: %w", id, ErrSessionNotFound)
	}
	return sess, err
}

// LatestSession returns the most recently created session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, engine_version, ir_version, ended, COALESCE(summary, '')
		FROM sessions
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrSessionNotFound)
	}
	return sess, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess    Session
		ended   int
		summary string
	)
	if err := sc.Scan(&sess.ID, &sess.EngineVersion, &sess.IRVersion, &ended, &summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Ended = ended != 0
	sum, err := unmarshalSummary(summary)
	if err != nil {
		return Session{}, err
	}
	sess.Summary = sum
	return sess, nil
}

// ReadModules returns a session's module events in seq order.
func (s *Store) ReadModules(ctx context.Context, session string, f Filter) ([]ir.ModuleEvent, error) {
	where, args, err := f.where("modules", session)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, module_id, state, raw_digest, patched_digest, error
		FROM modules`+where+`
		ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	events := []ir.ModuleEvent{}
	for rows.Next() {
		var (
			ev        ir.ModuleEvent
			id, state string
		)
		if err := rows.Scan(&ev.Seq, &id, &state, &ev.RawDigest, &ev.PatchedDigest, &ev.Error); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		ev.ModuleID = ir.ModuleID(id)
		if ev.State, err = ir.ParseModuleState(state); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return events, nil
}

// ReadAttempts returns a session's attempts in seq order.
func (s *Store) ReadAttempts(ctx context.Context, session string, f Filter) ([]ir.Attempt, error) {
	where, args, err := f.where("attempts", session)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, owner, rule_set_id, module_id, outcome, rule_index, reason, warnings
		FROM attempts`+where+`
		ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []ir.Attempt{}
	for rows.Next() {
		var (
			a               ir.Attempt
			module, outcome string
		)
		if err := rows.Scan(&a.Seq, &a.Owner, &a.RuleSetID, &module, &outcome, &a.RuleIndex, &a.Reason, &a.Warnings); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.ModuleID = ir.ModuleID(module)
		a.Outcome = ir.Outcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// ReadDiagnostics returns a session's diagnostics in seq order.
func (s *Store) ReadDiagnostics(ctx context.Context, session string, f Filter) ([]diag.Diagnostic, error) {
	where, args, err := f.where("diagnostics", session)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, code, severity, owner, module_id, signature, rule_set_id, rule_index, message, error, details
		FROM diagnostics`+where+`
		ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []diag.Diagnostic{}
	for rows.Next() {
		var (
			d                              diag.Diagnostic
			code, severity, module, errMsg string
			details                        string
		)
		if err := rows.Scan(&d.Seq, &code, &severity, &d.Owner, &module, &d.Signature,
			&d.RuleSetID, &d.RuleIndex, &d.Message, &errMsg, &details); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Code = diag.Code(code)
		d.Severity = parseSeverity(severity)
		d.ModuleID = ir.ModuleID(module)
		if errMsg != "" {
			d.Err = errors.New(errMsg)
		}
		if d.Details, err = unmarshalDetails(details); err != nil {
			return nil, err
		}
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}
