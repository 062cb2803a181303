package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides access to instruments, rule scripts, AI
// providers and the alert policy.
// ⭐ SSOT: 모니터링 대상 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new instrument repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const instrumentColumns = `
	id, symbol, name, enabled, interval_sec, mode,
	rule_script_id, ai_provider_id,
	schedule, trading_days_only, data_ref, prompt,
	created_at, updated_at
`

// ListEnabled returns every instrument with monitoring enabled.
// Used by the scheduler to register jobs.
func (r *Repository) ListEnabled(ctx context.Context) ([]Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM monitor.instruments
		WHERE enabled = true
		ORDER BY symbol
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	return scanInstruments(rows)
}

// List returns all instruments regardless of enabled state.
func (r *Repository) List(ctx context.Context) ([]Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM monitor.instruments
		ORDER BY symbol
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	return scanInstruments(rows)
}

// Get returns one instrument by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM monitor.instruments
		WHERE id = $1
	`

	inst, err := scanInstrument(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instrument %d: %w", id, err)
	}

	return inst, nil
}

// GetBySymbol returns one instrument by its symbol.
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM monitor.instruments
		WHERE symbol = $1
	`

	inst, err := scanInstrument(r.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instrument %s: %w", symbol, err)
	}

	return inst, nil
}

// GetScript returns a rule script by id.
func (r *Repository) GetScript(ctx context.Context, id int64) (*RuleScript, error) {
	query := `
		SELECT id, name, body, updated_at
		FROM monitor.rule_scripts
		WHERE id = $1
	`

	var s RuleScript
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Body, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule script %d: %w", id, err)
	}

	return &s, nil
}

// GetProvider returns an AI provider config by id.
func (r *Repository) GetProvider(ctx context.Context, id int64) (*AIProvider, error) {
	query := `
		SELECT id, name, base_url, api_key, model
		FROM monitor.ai_providers
		WHERE id = $1
	`

	var p AIProvider
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.BaseURL, &p.APIKey, &p.Model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ai provider %d: %w", id, err)
	}

	return &p, nil
}

// GetAlertPolicy returns the deployment-wide alert policy, or the
// built-in default when no row has been configured.
func (r *Repository) GetAlertPolicy(ctx context.Context) (AlertPolicy, error) {
	query := `
		SELECT policy
		FROM monitor.alert_policy
		ORDER BY id DESC
		LIMIT 1
	`

	var raw []byte
	err := r.pool.QueryRow(ctx, query).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultAlertPolicy(), nil
		}
		return AlertPolicy{}, fmt.Errorf("failed to get alert policy: %w", err)
	}

	var policy AlertPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return AlertPolicy{}, fmt.Errorf("failed to decode alert policy: %w", err)
	}

	return policy, nil
}

func scanInstruments(rows pgx.Rows) ([]Instrument, error) {
	var instruments []Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument row: %w", err)
		}
		instruments = append(instruments, *inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument rows: %w", err)
	}

	return instruments, nil
}

func scanInstrument(row pgx.Row) (*Instrument, error) {
	var inst Instrument
	err := row.Scan(
		&inst.ID, &inst.Symbol, &inst.Name, &inst.Enabled, &inst.Interval, &inst.Mode,
		&inst.RuleScriptID, &inst.AIProviderID,
		&inst.Schedule, &inst.TradingDaysOnly, &inst.DataRef, &inst.Prompt,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
