package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MariaTelemetryRepo реализует TelemetryRepo для базы данных MariaDB/MySQL.
// Использует таблицу vessel_telemetry для последних снимков и
// vessel_telemetry_history для истории полётов.
type MariaTelemetryRepo struct {
	db *sql.DB
}

// NewMariaTelemetryRepo создает новый репозиторий телеметрии для MariaDB.
// Автоматически создает таблицы, если они не существуют.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
//
// Возвращает:
//
//	*MariaTelemetryRepo - экземпляр репозитория
//	error - ошибка при подключении или создании таблиц
func NewMariaTelemetryRepo(dsn string) (*MariaTelemetryRepo, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaTelemetryRepo{db: db}

	// Создаем таблицы, если они не существуют
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	return repo, nil
}

// createTables создает таблицы телеметрии, если они не существуют.
func (r *MariaTelemetryRepo) createTables() error {
	latest := `
		CREATE TABLE IF NOT EXISTS vessel_telemetry (
			vessel_id  VARCHAR(64) PRIMARY KEY,
			pos_x      DOUBLE      NOT NULL,
			pos_y      DOUBLE      NOT NULL,
			pos_z      DOUBLE      NOT NULL,
			vel_x      DOUBLE      NOT NULL,
			vel_y      DOUBLE      NOT NULL,
			vel_z      DOUBLE      NOT NULL,
			speed      DOUBLE      NOT NULL,
			altitude   DOUBLE      NOT NULL,
			state      VARCHAR(32) NOT NULL,
			recorded_at TIMESTAMP(3) NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	history := `
		CREATE TABLE IF NOT EXISTS vessel_telemetry_history (
			id         BIGINT      AUTO_INCREMENT PRIMARY KEY,
			vessel_id  VARCHAR(64) NOT NULL,
			pos_x      DOUBLE      NOT NULL,
			pos_y      DOUBLE      NOT NULL,
			pos_z      DOUBLE      NOT NULL,
			vel_x      DOUBLE      NOT NULL,
			vel_y      DOUBLE      NOT NULL,
			vel_z      DOUBLE      NOT NULL,
			speed      DOUBLE      NOT NULL,
			altitude   DOUBLE      NOT NULL,
			state      VARCHAR(32) NOT NULL,
			recorded_at TIMESTAMP(3) NOT NULL,
			INDEX idx_vessel_time (vessel_id, recorded_at)
		) ENGINE=InnoDB
	`

	if _, err := r.db.Exec(latest); err != nil {
		return fmt.Errorf("ошибка создания таблицы vessel_telemetry: %w", err)
	}
	if _, err := r.db.Exec(history); err != nil {
		return fmt.Errorf("ошибка создания таблицы vessel_telemetry_history: %w", err)
	}

	return nil
}

const upsertQuery = `
	INSERT INTO vessel_telemetry
		(vessel_id, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, speed, altitude, state, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		pos_x = VALUES(pos_x), pos_y = VALUES(pos_y), pos_z = VALUES(pos_z),
		vel_x = VALUES(vel_x), vel_y = VALUES(vel_y), vel_z = VALUES(vel_z),
		speed = VALUES(speed), altitude = VALUES(altitude),
		state = VALUES(state), recorded_at = VALUES(recorded_at)
`

const historyInsertQuery = `
	INSERT INTO vessel_telemetry_history
		(vessel_id, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, speed, altitude, state, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func snapArgs(snap *TelemetrySnapshot) []interface{} {
	return []interface{}{
		snap.VesselID,
		snap.Position.X, snap.Position.Y, snap.Position.Z,
		snap.Velocity.X, snap.Velocity.Y, snap.Velocity.Z,
		snap.Speed, snap.Altitude, snap.State, snap.Timestamp,
	}
}

// Save сохраняет снимок телеметрии в базе данных.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для последнего снимка
// и обычный INSERT для истории.
func (r *MariaTelemetryRepo) Save(ctx context.Context, snap *TelemetrySnapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, upsertQuery, snapArgs(snap)...); err != nil {
		return fmt.Errorf("ошибка сохранения телеметрии для корабля %s: %w", snap.VesselID, err)
	}

	if _, err := r.db.ExecContext(ctx, historyInsertQuery, snapArgs(snap)...); err != nil {
		return fmt.Errorf("ошибка записи истории для корабля %s: %w", snap.VesselID, err)
	}

	return nil
}

// Load загружает последний снимок телеметрии корабля из базы данных.
func (r *MariaTelemetryRepo) Load(ctx context.Context, vesselID string) (*TelemetrySnapshot, bool, error) {
	if vesselID == "" {
		return nil, false, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	query := `
		SELECT vessel_id, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, speed, altitude, state, recorded_at
		FROM vessel_telemetry WHERE vessel_id = ?
	`

	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, vesselID))
	if err == sql.ErrNoRows {
		// Снимок не найден - корабль ещё не писал телеметрию
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки телеметрии для корабля %s: %w", vesselID, err)
	}

	// Prograde не хранится в БД, восстанавливаем из скорости
	snap.Prograde = snap.Velocity.Normalize()
	return snap, true, nil
}

// History возвращает снимки корабля за интервал [since, until].
func (r *MariaTelemetryRepo) History(ctx context.Context, vesselID string, since, until time.Time) ([]*TelemetrySnapshot, error) {
	if vesselID == "" {
		return nil, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	query := `
		SELECT vessel_id, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, speed, altitude, state, recorded_at
		FROM vessel_telemetry_history
		WHERE vessel_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, vesselID, since, until)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории для корабля %s: %w", vesselID, err)
	}
	defer rows.Close()

	var out []*TelemetrySnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки истории: %w", err)
		}
		snap.Prograde = snap.Velocity.Normalize()
		out = append(out, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода истории: %w", err)
	}

	return out, nil
}

// Delete удаляет сохранённую телеметрию корабля.
func (r *MariaTelemetryRepo) Delete(ctx context.Context, vesselID string) error {
	if vesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM vessel_telemetry WHERE vessel_id = ?`, vesselID)
	if err != nil {
		return fmt.Errorf("ошибка удаления телеметрии для корабля %s: %w", vesselID, err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM vessel_telemetry_history WHERE vessel_id = ?`, vesselID); err != nil {
		return fmt.Errorf("ошибка удаления истории для корабля %s: %w", vesselID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("телеметрия для корабля %s не найдена", vesselID)
	}

	return nil
}

// BatchSave сохраняет снимки нескольких кораблей в одной транзакции.
// Это оптимизация для автосохранения всей симуляции.
func (r *MariaTelemetryRepo) BatchSave(ctx context.Context, snaps []*TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil // Нечего сохранять
	}

	// Начинаем транзакцию
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	upsert, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer upsert.Close()

	hist, err := tx.PrepareContext(ctx, historyInsertQuery)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса истории: %w", err)
	}
	defer hist.Close()

	for _, snap := range snaps {
		// Валидация каждой записи
		if err := validateSnapshot(snap); err != nil {
			return fmt.Errorf("недействительный снимок в batch: %w", err)
		}

		if _, err := upsert.ExecContext(ctx, snapArgs(snap)...); err != nil {
			return fmt.Errorf("ошибка сохранения телеметрии для корабля %s в batch: %w", snap.VesselID, err)
		}
		if _, err := hist.ExecContext(ctx, snapArgs(snap)...); err != nil {
			return fmt.Errorf("ошибка записи истории для корабля %s в batch: %w", snap.VesselID, err)
		}
	}

	// Фиксируем транзакцию
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaTelemetryRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*TelemetrySnapshot, error) {
	var snap TelemetrySnapshot
	err := row.Scan(
		&snap.VesselID,
		&snap.Position.X, &snap.Position.Y, &snap.Position.Z,
		&snap.Velocity.X, &snap.Velocity.Y, &snap.Velocity.Z,
		&snap.Speed, &snap.Altitude, &snap.State, &snap.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
