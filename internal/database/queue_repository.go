package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"queuesync/internal/apperr"
	"queuesync/internal/logger"
	"queuesync/internal/queue"
)

const queueColumns = `queue_number, display_name, sla_threshold_seconds, warning_threshold_seconds,
	is_monitored, is_active, last_seen_at, created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// QueueRepository persiste los registros de colas
type QueueRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewQueueRepository crea un nuevo repositorio de colas
func NewQueueRepository(conn *Connection) *QueueRepository {
	return &QueueRepository{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ListQueues lista todas las colas, activas o no
func (r *QueueRepository) ListQueues(ctx context.Context) ([]queue.Record, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_records ORDER BY queue_number`

	rows, err := r.conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, persistenceErr("database.ListQueues", fmt.Errorf("error listando colas: %w", err))
	}
	defer rows.Close()

	records := make([]queue.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, persistenceErr("database.ListQueues", fmt.Errorf("error escaneando cola: %w", err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("database.ListQueues", err)
	}
	return records, nil
}

// GetQueue obtiene una cola por número
func (r *QueueRepository) GetQueue(ctx context.Context, number string) (*queue.Record, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_records WHERE queue_number = ?`

	rec, err := scanRecord(r.conn.DB.QueryRowContext(ctx, query, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetQueue", "cola %s no encontrada", number)
	}
	if err != nil {
		return nil, persistenceErr("database.GetQueue", fmt.Errorf("error consultando cola: %w", err))
	}
	return &rec, nil
}

// CreateQueue crea una cola validando sus umbrales
func (r *QueueRepository) CreateQueue(ctx context.Context, rec *queue.Record) error {
	if rec.DisplayName == "" {
		rec.DisplayName = rec.QueueNumber
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	now := r.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if err := insertRecord(ctx, r.conn.DB, *rec); err != nil {
		return persistenceErr("database.CreateQueue", fmt.Errorf("error creando cola %s: %w", rec.QueueNumber, err))
	}
	return nil
}

// UpdateQueueSettings actualiza los campos que pertenecen al administrador.
// Nunca modifica is_active ni last_seen_at.
func (r *QueueRepository) UpdateQueueSettings(ctx context.Context, number string, s queue.Settings) (*queue.Record, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("database.UpdateQueueSettings", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + queueColumns + ` FROM queue_records WHERE queue_number = ?`
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.UpdateQueueSettings", "cola %s no encontrada", number)
	}
	if err != nil {
		return nil, persistenceErr("database.UpdateQueueSettings", err)
	}

	s.Apply(&rec)
	rec.UpdatedAt = r.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE queue_records
		SET display_name = ?, sla_threshold_seconds = ?, warning_threshold_seconds = ?,
		    is_monitored = ?, updated_at = ?
		WHERE queue_number = ?`,
		rec.DisplayName, rec.SLAThresholdSeconds, rec.WarningThresholdSeconds,
		rec.IsMonitored, rec.UpdatedAt, rec.QueueNumber,
	)
	if err != nil {
		return nil, persistenceErr("database.UpdateQueueSettings", fmt.Errorf("error actualizando cola: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("database.UpdateQueueSettings", err)
	}
	return &rec, nil
}

// Apply aplica el plan completo en una sola transacción. Cualquier fallo
// revierte todo: la base refleja el último estado vivo o queda intacta.
func (r *QueueRepository) Apply(ctx context.Context, plan queue.Plan) (queue.SyncResult, error) {
	const op = "database.Apply"
	log := logger.For("database")

	tx, err := r.conn.DB.BeginTx(ctx, &sql.TxOptions{Isolation: r.conn.txIsolation()})
	if err != nil {
		return queue.SyncResult{}, persistenceErr(op, fmt.Errorf("error iniciando transacción: %w", err))
	}
	defer tx.Rollback()

	now := r.now()
	for _, item := range plan.Items {
		if err := r.applyItem(ctx, tx, item, now); err != nil {
			log.Warn("plan revertido", "queue", item.Record.QueueNumber, "action", item.Action, "error", err)
			return queue.SyncResult{}, persistenceErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return queue.SyncResult{}, persistenceErr(op, fmt.Errorf("error confirmando transacción: %w", err))
	}

	res := plan.Summary()
	log.Info("plan aplicado", "created", res.Created, "reactivated", res.Reactivated,
		"deactivated", res.Deactivated, "unchanged", res.Unchanged)
	return res, nil
}

func (r *QueueRepository) applyItem(ctx context.Context, tx *sql.Tx, item queue.PlanItem, now time.Time) error {
	rec := item.Record

	var (
		result sql.Result
		err    error
	)
	switch item.Action {
	case queue.ActionCreate:
		if err := rec.Validate(); err != nil {
			return err
		}
		rec.CreatedAt, rec.UpdatedAt = now, now
		if err := insertRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("error creando cola %s: %w", rec.QueueNumber, err)
		}
		return nil
	case queue.ActionReactivate:
		result, err = tx.ExecContext(ctx, `
			UPDATE queue_records SET is_active = ?, last_seen_at = ?, updated_at = ?
			WHERE queue_number = ? AND is_active = ?`,
			true, rec.LastSeenAt, now, rec.QueueNumber, false)
	case queue.ActionTouch:
		result, err = tx.ExecContext(ctx, `
			UPDATE queue_records SET last_seen_at = ?
			WHERE queue_number = ? AND is_active = ?`,
			rec.LastSeenAt, rec.QueueNumber, true)
	case queue.ActionDeactivate:
		result, err = tx.ExecContext(ctx, `
			UPDATE queue_records SET is_active = ?, updated_at = ?
			WHERE queue_number = ? AND is_active = ?`,
			false, now, rec.QueueNumber, true)
	default:
		return fmt.Errorf("acción desconocida %q para cola %s", item.Action, rec.QueueNumber)
	}
	if err != nil {
		return fmt.Errorf("error aplicando %s a cola %s: %w", item.Action, rec.QueueNumber, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("cola %s cambió desde que se calculó el plan (%s afectó %d filas)", rec.QueueNumber, item.Action, n)
	}
	return nil
}

func insertRecord(ctx context.Context, ex execer, rec queue.Record) error {
	var lastSeen sql.NullTime
	if !rec.LastSeenAt.IsZero() {
		lastSeen = sql.NullTime{Time: rec.LastSeenAt, Valid: true}
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO queue_records (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueueNumber, rec.DisplayName, rec.SLAThresholdSeconds, rec.WarningThresholdSeconds,
		rec.IsMonitored, rec.IsActive, lastSeen, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func scanRecord(row rowScanner) (queue.Record, error) {
	var (
		rec      queue.Record
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&rec.QueueNumber, &rec.DisplayName, &rec.SLAThresholdSeconds, &rec.WarningThresholdSeconds,
		&rec.IsMonitored, &rec.IsActive, &lastSeen, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	if lastSeen.Valid {
		rec.LastSeenAt = lastSeen.Time
	}
	return rec, nil
}

// persistenceErr clasifica un fallo de base de datos; un plazo vencido se
// reporta como timeout.
func persistenceErr(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindValidation {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTimeout, op, err)
	}
	return apperr.New(apperr.KindPersistence, op, err)
}
