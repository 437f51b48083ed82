package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "stocklane/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema if it does not exist (dev helper).
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id uuid PRIMARY KEY,
    scope text NOT NULL DEFAULT '',
    url text NOT NULL,
    secret text NOT NULL,
    events jsonb NOT NULL,
    active boolean NOT NULL DEFAULT true,
    name text NOT NULL DEFAULT '',
    description text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now(),
    last_status int NOT NULL DEFAULT 0,
    last_attempt_at timestamptz,
    last_success_at timestamptz,
    failure_count int NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS webhook_events (
    seq bigserial PRIMARY KEY,
    id uuid NOT NULL,
    event_type text NOT NULL,
    scope text NOT NULL DEFAULT '',
    ts timestamptz NOT NULL,
    data jsonb
);
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id uuid PRIMARY KEY,
    subscription_id uuid NOT NULL,
    event_type text NOT NULL,
    event_id uuid NOT NULL,
    payload bytea NOT NULL,
    url text NOT NULL,
    attempt_number int NOT NULL DEFAULT 1,
    max_attempts int NOT NULL,
    scheduled_at timestamptz NOT NULL,
    attempted_at timestamptz,
    status_code int NOT NULL DEFAULT 0,
    response_body text NOT NULL DEFAULT '',
    last_error text NOT NULL DEFAULT '',
    next_retry_at timestamptz,
    claimed_at timestamptz
);
CREATE INDEX IF NOT EXISTS webhook_deliveries_due ON webhook_deliveries (next_retry_at) WHERE claimed_at IS NULL;
`

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    if sub.ID == "" {
        sub.ID = uuid.New().String()
    }
    now := time.Now().UTC()
    sub.CreatedAt = now
    sub.UpdatedAt = now
    ev, _ := json.Marshal(sub.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, scope, url, secret, events, active, name, description, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`,
        sub.ID, sub.Scope, sub.URL, sub.Secret, ev, sub.Active, sub.Name, sub.Description, now)
    if err != nil { return model.Subscription{}, err }
    return sub, nil
}

const subCols = `id::text, scope, url, secret, events, active, name, description, created_at, updated_at, last_status, last_attempt_at, last_success_at, failure_count`

func scanSubscription(row interface{ Scan(...any) error }) (model.Subscription, error) {
    var s model.Subscription
    var ev []byte
    var lastAttempt, lastSuccess sql.NullTime
    if err := row.Scan(&s.ID, &s.Scope, &s.URL, &s.Secret, &ev, &s.Active, &s.Name, &s.Description,
        &s.CreatedAt, &s.UpdatedAt, &s.LastStatus, &lastAttempt, &lastSuccess, &s.FailureCount); err != nil {
        return model.Subscription{}, err
    }
    _ = json.Unmarshal(ev, &s.Events)
    if lastAttempt.Valid { t := lastAttempt.Time; s.LastAttemptAt = &t }
    if lastSuccess.Valid { t := lastSuccess.Time; s.LastSuccessAt = &t }
    return s, nil
}

func (p *Postgres) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id=$1`, id)
    s, err := scanSubscription(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
    return s, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context, scope string) ([]model.Subscription, error) {
    q := `SELECT ` + subCols + ` FROM subscriptions`
    args := []any{}
    if scope != "" {
        q += ` WHERE scope=$1`
        args = append(args, scope)
    }
    q += ` ORDER BY created_at`
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateSubscription(ctx context.Context, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
    // read-modify-write inside a transaction keeps the patch atomic per row
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Subscription{}, err }
    defer func(){ _ = tx.Rollback() }()
    row := tx.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id=$1 FOR UPDATE`, id)
    s, err := scanSubscription(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
    if err != nil { return model.Subscription{}, err }
    applyPatch(&s, patch)
    s.UpdatedAt = time.Now().UTC()
    ev, _ := json.Marshal(s.Events)
    _, err = tx.ExecContext(ctx, `UPDATE subscriptions SET url=$2, secret=$3, events=$4, active=$5, name=$6, description=$7, updated_at=$8 WHERE id=$1`,
        id, s.URL, s.Secret, ev, s.Active, s.Name, s.Description, s.UpdatedAt)
    if err != nil { return model.Subscription{}, err }
    if err := tx.Commit(); err != nil { return model.Subscription{}, err }
    return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, scope, eventType string) ([]model.Subscription, error) {
    ev, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT `+subCols+` FROM subscriptions
        WHERE active AND events @> $1::jsonb AND ($2 = '' OR scope = '' OR scope = $2)`, ev, scope)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateSubscriptionHealth(ctx context.Context, id string, statusCode int, success bool, at time.Time) error {
    var err error
    if success {
        _, err = p.db.ExecContext(ctx, `UPDATE subscriptions SET last_status=$2, last_attempt_at=$3, last_success_at=$3, failure_count=0, updated_at=$3 WHERE id=$1`,
            id, statusCode, at)
    } else {
        _, err = p.db.ExecContext(ctx, `UPDATE subscriptions SET last_status=$2, last_attempt_at=$3, failure_count=failure_count+1, updated_at=$3 WHERE id=$1`,
            id, statusCode, at)
    }
    return err
}

// Event log

func (p *Postgres) AppendEvent(ctx context.Context, evt model.DomainEvent) error {
    data, _ := json.Marshal(evt.Data)
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_events (id, event_type, scope, ts, data) VALUES ($1,$2,$3,$4,$5)`,
        evt.ID, evt.EventType, evt.Scope, evt.Timestamp, data); err != nil {
        return err
    }
    // evict beyond the cap, oldest first
    if _, err := tx.ExecContext(ctx, `DELETE FROM webhook_events WHERE seq <= (SELECT max(seq) FROM webhook_events) - $1`, model.EventLogCap); err != nil {
        return err
    }
    return tx.Commit()
}

func (p *Postgres) ListEvents(ctx context.Context, limit int) ([]model.DomainEvent, error) {
    if limit <= 0 || limit > model.EventLogCap { limit = model.EventLogCap }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, scope, ts, data FROM webhook_events ORDER BY seq DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.DomainEvent{}
    for rows.Next() {
        var e model.DomainEvent
        var data []byte
        if err := rows.Scan(&e.ID, &e.EventType, &e.Scope, &e.Timestamp, &data); err != nil { return nil, err }
        if len(data) > 0 { _ = json.Unmarshal(data, &e.Data) }
        out = append(out, e)
    }
    return out, rows.Err()
}

// Delivery queue

func (p *Postgres) EnqueueDeliveries(ctx context.Context, attempts []model.DeliveryAttempt) error {
    if len(attempts) == 0 { return nil }
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, a := range attempts {
        if a.ID == "" { a.ID = uuid.New().String() }
        if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, event_id, payload, url, attempt_number, max_attempts, scheduled_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
            a.ID, a.SubscriptionID, a.EventType, a.EventID, a.Payload, a.URL, a.AttemptNumber, a.MaxAttempts, a.ScheduledAt); err != nil {
            return err
        }
    }
    return tx.Commit()
}

const delCols = `id::text, subscription_id::text, event_type, event_id::text, payload, url, attempt_number, max_attempts, scheduled_at, attempted_at, status_code, response_body, last_error, next_retry_at`

func scanDelivery(row interface{ Scan(...any) error }) (model.DeliveryAttempt, error) {
    var a model.DeliveryAttempt
    var attempted, nextRetry sql.NullTime
    if err := row.Scan(&a.ID, &a.SubscriptionID, &a.EventType, &a.EventID, &a.Payload, &a.URL,
        &a.AttemptNumber, &a.MaxAttempts, &a.ScheduledAt, &attempted, &a.StatusCode, &a.ResponseBody, &a.Error, &nextRetry); err != nil {
        return model.DeliveryAttempt{}, err
    }
    if attempted.Valid { t := attempted.Time; a.AttemptedAt = &t }
    if nextRetry.Valid { t := nextRetry.Time; a.NextRetryAt = &t }
    return a, nil
}

// ClaimDueDeliveries marks due rows claimed and returns them in one
// statement; SKIP LOCKED keeps concurrent passes from double-claiming.
func (p *Postgres) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `UPDATE webhook_deliveries SET claimed_at=$1 WHERE id IN (
            SELECT id FROM webhook_deliveries
            WHERE claimed_at IS NULL AND ((attempted_at IS NULL AND scheduled_at <= $1) OR next_retry_at <= $1)
            ORDER BY scheduled_at
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        ) RETURNING `+delCols, now, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.DeliveryAttempt{}
    for rows.Next() {
        a, err := scanDelivery(rows)
        if err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (p *Postgres) RescheduleDelivery(ctx context.Context, a model.DeliveryAttempt) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempt_number=$2, attempted_at=$3, status_code=$4, response_body=$5, last_error=$6, next_retry_at=$7, claimed_at=NULL WHERE id=$1`,
        a.ID, a.AttemptNumber, a.AttemptedAt, a.StatusCode, a.ResponseBody, a.Error, a.NextRetryAt)
    return err
}

func (p *Postgres) CompleteDelivery(ctx context.Context, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE id=$1`, id)
    return err
}

func (p *Postgres) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET claimed_at=NULL WHERE claimed_at IS NOT NULL AND claimed_at < $1`, cutoff)
    if err != nil { return 0, err }
    n, _ := res.RowsAffected()
    return int(n), nil
}

func (p *Postgres) ListDeliveries(ctx context.Context, limit int) ([]model.DeliveryAttempt, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT `+delCols+` FROM webhook_deliveries ORDER BY scheduled_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.DeliveryAttempt{}
    for rows.Next() {
        a, err := scanDelivery(rows)
        if err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (p *Postgres) RetryDeliveryNow(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET next_retry_at=now(), claimed_at=NULL WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) CountQueuedDeliveries(ctx context.Context) (int, error) {
    var n int
    err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM webhook_deliveries`).Scan(&n)
    return n, err
}
