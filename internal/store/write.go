package store

import (
	"context"
	"fmt"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// BeginSession opens a session row. Re-opening an existing session is a no-op.
func (s *Store) BeginSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, engine_version, ir_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, ir.EngineVersion, ir.IRVersion)
	if err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	return nil
}

// EndSession closes a session with its summary.
func (s *Store) EndSession(ctx context.Context, sum ir.SessionSummary) error {
	summary, err := marshalSummary(sum)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended = 1, summary = ? WHERE id = ?
	`, summary, sum.ID)
	if err != nil {
		return fmt.Errorf("end session %s: %w", sum.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", sum.ID, ErrSessionNotFound)
	}
	return nil
}

// WriteModule appends a module lifecycle row.
func (s *Store) WriteModule(ctx context.Context, session string, ev ir.ModuleEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (session_id, seq, module_id, state, raw_digest, patched_digest, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, session, ev.Seq, string(ev.ModuleID), ev.State.String(), ev.RawDigest, ev.PatchedDigest, ev.Error)
	if err != nil {
		return fmt.Errorf("write module %s: %w", ev.ModuleID, err)
	}
	return nil
}

// WriteAttempt appends a rule set attempt row.
func (s *Store) WriteAttempt(ctx context.Context, session string, a ir.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (session_id, seq, owner, rule_set_id, module_id, outcome, rule_index, reason, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, session, a.Seq, a.Owner, a.RuleSetID, string(a.ModuleID), string(a.Outcome), a.RuleIndex, a.Reason, a.Warnings)
	if err != nil {
		return fmt.Errorf("write attempt %d: %w", a.Seq, err)
	}
	return nil
}

// WriteDiagnostic appends a diagnostic row. Seq must already be assigned.
func (s *Store) WriteDiagnostic(ctx context.Context, session string, d diag.Diagnostic) error {
	details, err := marshalDetails(d.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diagnostics (session_id, seq, code, severity, owner, module_id, signature,
			rule_set_id, rule_index, message, error, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, session, d.Seq, string(d.Code), d.Severity.String(), d.Owner, string(d.ModuleID), d.Signature,
		d.RuleSetID, d.RuleIndex, d.Message, errText(d.Err), details)
	if err != nil {
		return fmt.Errorf("write diagnostic %d: %w", d.Seq, err)
	}
	return nil
}
