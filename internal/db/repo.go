package db

import (
	"context"
	"database/sql"
	"time"

	"pulsemon/internal/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

// CheckSample is a service check joined with its cycle timestamp, the unit
// the downsampling engine buckets on.
type CheckSample struct {
	TS          time.Time
	ServiceName string
	Status      models.Status
	LatencyMS   *int64
}

// InsertCycle writes the cycle row and all its service rows as one atomic
// unit: either everything commits or nothing does.
func (r *Repository) InsertCycle(ctx context.Context, cycle models.MonitoringCycle, checks []models.ServiceCheckResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO cycles
		(id,ts,cpu_pct,ram_pct,ram_used_mb,disk_pct,container_count,internet_ok,ping_ms,worker_status,cycle_duration_ms,uptime_sec)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		cycle.ID, cycle.TS.UTC(), cycle.CPUPct, cycle.RAMPct, cycle.RAMUsedMB, cycle.DiskPct,
		cycle.ContainerCount, boolToInt(cycle.InternetOK), nullInt64(cycle.PingMS), nullInt(cycle.WorkerStatus),
		cycle.CycleDurationMS, cycle.UptimeSec,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO service_checks
		(cycle_id,service_name,target,status,latency_ms,status_code,error) VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range checks {
		if _, err := stmt.ExecContext(ctx, cycle.ID, c.ServiceName, c.Target, string(c.Status),
			nullInt64(c.LatencyMS), nullInt(c.Code), c.Error); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestCycle returns the newest persisted cycle and its service rows.
func (r *Repository) LatestCycle(ctx context.Context) (models.MonitoringCycle, []models.ServiceCheckResult, error) {
	cycle, err := r.scanCycle(r.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles ORDER BY ts DESC LIMIT 1`))
	if err != nil {
		return models.MonitoringCycle{}, nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT cycle_id,service_name,target,status,latency_ms,status_code,error
		FROM service_checks WHERE cycle_id = ? ORDER BY service_name`, cycle.ID)
	if err != nil {
		return models.MonitoringCycle{}, nil, err
	}
	defer rows.Close()
	var checks []models.ServiceCheckResult
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return models.MonitoringCycle{}, nil, err
		}
		checks = append(checks, c)
	}
	return cycle, checks, rows.Err()
}

// CyclesSince returns all cycle rows at or after from, oldest first.
func (r *Repository) CyclesSince(ctx context.Context, from time.Time) ([]models.MonitoringCycle, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE ts >= ? ORDER BY ts ASC`, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MonitoringCycle
	for rows.Next() {
		c, err := r.scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ServiceChecksSince returns check samples joined with their cycle
// timestamps at or after from, oldest first.
func (r *Repository) ServiceChecksSince(ctx context.Context, from time.Time) ([]CheckSample, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT m.ts, s.service_name, s.status, s.latency_ms
		FROM service_checks s JOIN cycles m ON m.id = s.cycle_id
		WHERE m.ts >= ? ORDER BY m.ts ASC`, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckSample
	for rows.Next() {
		var sample CheckSample
		var status string
		var latency sql.NullInt64
		if err := rows.Scan(&sample.TS, &sample.ServiceName, &status, &latency); err != nil {
			return nil, err
		}
		sample.Status = models.Status(status)
		if latency.Valid {
			v := latency.Int64
			sample.LatencyMS = &v
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

const cycleColumns = `id,ts,cpu_pct,ram_pct,ram_used_mb,disk_pct,container_count,internet_ok,ping_ms,worker_status,cycle_duration_ms,uptime_sec`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanCycle(row rowScanner) (models.MonitoringCycle, error) {
	var c models.MonitoringCycle
	var internetOK int
	var ping sql.NullInt64
	var worker sql.NullInt64
	err := row.Scan(&c.ID, &c.TS, &c.CPUPct, &c.RAMPct, &c.RAMUsedMB, &c.DiskPct,
		&c.ContainerCount, &internetOK, &ping, &worker, &c.CycleDurationMS, &c.UptimeSec)
	if err != nil {
		return models.MonitoringCycle{}, err
	}
	c.InternetOK = internetOK == 1
	if ping.Valid {
		v := ping.Int64
		c.PingMS = &v
	}
	if worker.Valid {
		v := int(worker.Int64)
		c.WorkerStatus = &v
	}
	return c, nil
}

func scanCheck(row rowScanner) (models.ServiceCheckResult, error) {
	var c models.ServiceCheckResult
	var status string
	var latency, code sql.NullInt64
	err := row.Scan(&c.CycleID, &c.ServiceName, &c.Target, &status, &latency, &code, &c.Error)
	if err != nil {
		return models.ServiceCheckResult{}, err
	}
	c.Status = models.Status(status)
	if latency.Valid {
		v := latency.Int64
		c.LatencyMS = &v
	}
	if code.Valid {
		v := int(code.Int64)
		c.Code = &v
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
