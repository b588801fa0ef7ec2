package database

import (
	"context"
	"database/sql"

	"github.com/hodlmetight/magmad/internal/apierror"
	"github.com/hodlmetight/magmad/model"
)

// GetHaltFlag returns the persisted halt flag, or nil when the pipeline is
// clear to run.
func (d Datasource) GetHaltFlag(ctx context.Context) (*model.HaltFlag, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT reason, set_at FROM halt_flag WHERE id = 1
	`)

	flag := &model.HaltFlag{}
	err := row.Scan(&flag.Reason, &flag.SetAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve halt flag", err)
	}

	return flag, nil
}

// SetHaltFlag persists the halt flag. If the flag is already set the original
// reason is kept, so the first fatal error is the one that gets investigated.
func (d Datasource) SetHaltFlag(ctx context.Context, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO halt_flag(id, reason, set_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO NOTHING
	`, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set halt flag", err)
	}
	return nil
}

// ClearHaltFlag removes the halt flag. Clearing an already-clear flag is not
// an error.
func (d Datasource) ClearHaltFlag(ctx context.Context) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM halt_flag WHERE id = 1
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear halt flag", err)
	}
	return nil
}
