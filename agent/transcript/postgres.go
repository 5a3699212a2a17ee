package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// PostgresConfig is read with the POSTGRES prefix. The sink is disabled when DSN is empty.
type PostgresConfig struct {
	DSN         string        `envconfig:"DSN"`
	Migrate     bool          `split_words:"true" default:"true"`
	DialTimeout time.Duration `split_words:"true" default:"5s"`
}

func (c PostgresConfig) Enabled() bool {
	return c.DSN != ""
}

type callRow struct {
	bun.BaseModel `bun:"table:call_sessions,alias:cs"`

	SessionID           string     `bun:"session_id,pk"`
	TenantID            string     `bun:"tenant_id"`
	CallSID             string     `bun:"call_sid"`
	InboundPhoneNumber  string     `bun:"inbound_phone_number"`
	CustomerPhone       string     `bun:"customer_phone"`
	Status              string     `bun:"status,notnull"`
	EscalationRequested bool       `bun:"escalation_requested,notnull,default:false"`
	EndReason           string     `bun:"end_reason"`
	Summary             string     `bun:"summary"`
	StartedAt           time.Time  `bun:"started_at,notnull"`
	EndedAt             *time.Time `bun:"ended_at"`
}

type entryRow struct {
	bun.BaseModel `bun:"table:transcript_entries,alias:te"`

	ID             int64     `bun:"id,pk,autoincrement"`
	SessionID      string    `bun:"session_id,notnull"`
	Speaker        string    `bun:"speaker,notnull"`
	Contents       string    `bun:"contents"`
	WasInterrupted bool      `bun:"was_interrupted,notnull,default:false"`
	At             time.Time `bun:"at,notnull"`
}

// OpenPostgres connects bun to Postgres through pgdriver.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresSink stores call records and transcript entries in two tables.
type PostgresSink struct {
	db bun.IDB
}

func NewPostgresSink(db bun.IDB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (p *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*callRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create call_sessions: %w", err)
	}
	if _, err := p.db.NewCreateTable().Model((*entryRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create transcript_entries: %w", err)
	}
	if _, err := p.db.NewCreateIndex().
		Model((*entryRow)(nil)).
		Index("transcript_entries_session_id_idx").
		Column("session_id", "id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create transcript_entries index: %w", err)
	}
	return nil
}

func (p *PostgresSink) Started(ctx context.Context, rec contractx.CallRecord) error {
	row := toCallRow(rec)
	if _, err := p.db.NewInsert().Model(&row).On("CONFLICT (session_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert call session: %w", err)
	}
	return nil
}

func (p *PostgresSink) Entry(ctx context.Context, sessionID string, entry contractx.TranscriptEntry) error {
	row := toEntryRow(sessionID, entry)
	if _, err := p.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert transcript entry: %w", err)
	}
	return nil
}

func (p *PostgresSink) Ended(ctx context.Context, rec contractx.CallRecord) error {
	row := toCallRow(rec)
	if _, err := p.upsertFinal(&row).Exec(ctx); err != nil {
		return fmt.Errorf("finalize call session: %w", err)
	}
	return nil
}

func (p *PostgresSink) upsertFinal(row *callRow) *bun.InsertQuery {
	return p.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("escalation_requested = EXCLUDED.escalation_requested").
		Set("end_reason = EXCLUDED.end_reason").
		Set("summary = EXCLUDED.summary").
		Set("ended_at = EXCLUDED.ended_at")
}

func toCallRow(rec contractx.CallRecord) callRow {
	return callRow{
		SessionID:           rec.SessionID,
		TenantID:            rec.TenantID,
		CallSID:             rec.CallSID,
		InboundPhoneNumber:  rec.InboundPhoneNumber,
		CustomerPhone:       rec.CustomerPhone,
		Status:              string(rec.Status),
		EscalationRequested: rec.EscalationRequested,
		EndReason:           rec.EndReason,
		Summary:             rec.Summary,
		StartedAt:           rec.StartedAt,
		EndedAt:             rec.EndedAt,
	}
}

func toEntryRow(sessionID string, e contractx.TranscriptEntry) entryRow {
	return entryRow{
		SessionID:      sessionID,
		Speaker:        string(e.Speaker),
		Contents:       e.Contents,
		WasInterrupted: e.WasInterrupted,
		At:             e.Time,
	}
}
