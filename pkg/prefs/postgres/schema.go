package postgres

import (
	"context"
	"fmt"
)

const ddlPrefs = `
CREATE TABLE IF NOT EXISTS soundcue_prefs (
    profile    TEXT             NOT NULL,
    key        TEXT             NOT NULL,
    value      DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
    PRIMARY KEY (profile, key)
);
`

// Migrate creates the preference table if it does not exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, ddlPrefs); err != nil {
		return fmt.Errorf("prefs postgres: migrate: %w", err)
	}
	return nil
}
