package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/leave-ledger/factory"
	"github.com/warp/leave-ledger/settings"
)

var (
	_ settings.Repository = (*Store)(nil)
	_ factory.LayerWriter = (*Store)(nil)
)

// =============================================================================
// SETTINGS LAYERS (settings.Repository interface)
// =============================================================================
//
// One row per layer, one JSON column per category. The global layer is the
// row keyed ('', ''). A NULL column means the layer leaves that category unset.

const layerColumns = `leaves_json, loans_json, salary_advance_json, permissions_json,
	overtime_json, attendance_deduction_json`

func (s *Store) Override(ctx context.Context, departmentID, divisionID string) (*settings.Layer, error) {
	if departmentID == "" && divisionID == "" {
		return nil, nil
	}
	return s.layer(ctx, departmentID, divisionID)
}

func (s *Store) Defaults(ctx context.Context) (*settings.Layer, error) {
	return s.layer(ctx, "", "")
}

func (s *Store) layer(ctx context.Context, departmentID, divisionID string) (*settings.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cols [6]sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT `+layerColumns+` FROM settings_layers WHERE department_id = ? AND division_id = ?`,
		departmentID, divisionID,
	).Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings layer: %w", err)
	}

	l := &settings.Layer{DepartmentID: departmentID, DivisionID: divisionID}
	targets := []any{&l.Leaves, &l.Loans, &l.SalaryAdvance, &l.Permissions, &l.Overtime, &l.AttendanceDeduction}
	for i, c := range cols {
		if !c.Valid || c.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.String), targets[i]); err != nil {
			return nil, fmt.Errorf("settings layer %s/%s: %w", departmentID, divisionID, err)
		}
	}
	return l, nil
}

// SetDefaults replaces the global layer.
func (s *Store) SetDefaults(ctx context.Context, layer *settings.Layer) error {
	return s.saveLayer(ctx, "", "", layer)
}

// SetOverride stores layer under its DepartmentID/DivisionID.
func (s *Store) SetOverride(ctx context.Context, layer *settings.Layer) error {
	if layer.DepartmentID == "" && layer.DivisionID == "" {
		return fmt.Errorf("override needs a department or division")
	}
	return s.saveLayer(ctx, layer.DepartmentID, layer.DivisionID, layer)
}

// RemoveOverride deletes an override so the next level applies again.
func (s *Store) RemoveOverride(ctx context.Context, departmentID, divisionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM settings_layers WHERE department_id = ? AND division_id = ?`,
		departmentID, divisionID)
	return err
}

func (s *Store) saveLayer(ctx context.Context, departmentID, divisionID string, l *settings.Layer) error {
	var cols [6]sql.NullString
	for i, v := range []any{l.Leaves, l.Loans, l.SalaryAdvance, l.Permissions, l.Overtime, l.AttendanceDeduction} {
		c, err := categoryJSON(v)
		if err != nil {
			return err
		}
		cols[i] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings_layers
		(department_id, division_id, `+layerColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		departmentID, divisionID, cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save settings layer: %w", err)
	}
	return nil
}

// categoryJSON encodes one override pointer; nil pointers stay NULL.
func categoryJSON(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
