package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/world-persist/internal/vec"
)

// MariaStore реализует Store для базы данных MariaDB/MySQL.
//
// Запись идет через одну долгоживущую транзакцию, которую worker
// прокатывает методом CommitAndBegin — все команды между двумя границами
// фиксируются одной атомарной единицей. Чтение идет мимо транзакции,
// через пул соединений, поэтому читатель видит только зафиксированные
// данные.
type MariaStore struct {
	db *sql.DB
	tx *sql.Tx
}

const (
	insertBlockQuery = `
		INSERT INTO block (p, q, x, y, z, w)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE w = VALUES(w)`
	insertLightQuery = `
		INSERT INTO light (p, q, x, y, z, w)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE w = VALUES(w)`
	insertDamageQuery = `
		INSERT INTO block_damage (p, q, x, y, z, w)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE w = VALUES(w)`
	trimDamageQuery = `DELETE FROM block_damage WHERE w = 0 AND p = ? AND q = ?`
	setKeyQuery     = `
		INSERT INTO chunk_key (p, q, k)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE k = VALUES(k)`
	insertSignQuery = `
		INSERT INTO sign (p, q, x, y, z, face, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE text = VALUES(text)`
	loadBlocksQuery = `SELECT x, y, z, w FROM block WHERE p = ? AND q = ?`
	loadLightsQuery = `SELECT x, y, z, w FROM light WHERE p = ? AND q = ?`
	loadDamageQuery = `SELECT x, y, z, w FROM block_damage WHERE p = ? AND q = ?`
	loadSignsQuery  = `SELECT x, y, z, face, text FROM sign WHERE p = ? AND q = ?`
	getKeyQuery     = `SELECT k FROM chunk_key WHERE p = ? AND q = ?`
)

// NewMariaStore создает хранилище мира для MariaDB.
// Автоматически создает таблицы, если они не существуют.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
//
// Возвращает:
//
//	*MariaStore - экземпляр хранилища с открытой транзакцией записи
//	error - ошибка при подключении или создании таблиц
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	s := &MariaStore{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	// Открываем первую транзакцию записи
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось открыть транзакцию: %w", err)
	}
	s.tx = tx

	return s, nil
}

// createTables создает схему мира, если она не существует.
func (s *MariaStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS block (
			p INT NOT NULL,
			q INT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			z INT NOT NULL,
			w INT NOT NULL,
			UNIQUE KEY block_pqxyz_idx (p, q, x, y, z)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS light (
			p INT NOT NULL,
			q INT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			z INT NOT NULL,
			w INT NOT NULL,
			UNIQUE KEY light_pqxyz_idx (p, q, x, y, z)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS block_damage (
			p INT NOT NULL,
			q INT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			z INT NOT NULL,
			w INT NOT NULL,
			UNIQUE KEY damage_pqxyz_idx (p, q, x, y, z)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS chunk_key (
			p INT NOT NULL,
			q INT NOT NULL,
			k INT NOT NULL,
			UNIQUE KEY key_pq_idx (p, q)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS sign (
			p INT NOT NULL,
			q INT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			z INT NOT NULL,
			face INT NOT NULL,
			text TEXT NOT NULL,
			UNIQUE KEY sign_xyzface_idx (x, y, z, face),
			KEY sign_pq_idx (p, q)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS player_state (
			x DOUBLE NOT NULL,
			y DOUBLE NOT NULL,
			z DOUBLE NOT NULL,
			rx DOUBLE NOT NULL,
			ry DOUBLE NOT NULL,
			flying TINYINT NOT NULL
		) ENGINE=InnoDB`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("ошибка создания схемы: %w", err)
		}
	}

	return nil
}

func (s *MariaStore) InsertBlock(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	_, err := s.tx.ExecContext(ctx, insertBlockQuery, p, q, pos.X, pos.Y, pos.Z, w)
	if err != nil {
		return fmt.Errorf("ошибка записи блока (%d,%d): %w", p, q, err)
	}
	return nil
}

func (s *MariaStore) InsertLight(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	_, err := s.tx.ExecContext(ctx, insertLightQuery, p, q, pos.X, pos.Y, pos.Z, w)
	if err != nil {
		return fmt.Errorf("ошибка записи света (%d,%d): %w", p, q, err)
	}
	return nil
}

func (s *MariaStore) InsertBlockDamage(ctx context.Context, p, q int, pos vec.Vec3, damage int) error {
	_, err := s.tx.ExecContext(ctx, insertDamageQuery, p, q, pos.X, pos.Y, pos.Z, damage)
	if err != nil {
		return fmt.Errorf("ошибка записи износа (%d,%d): %w", p, q, err)
	}
	return nil
}

func (s *MariaStore) TrimZeroDamage(ctx context.Context, p, q int) error {
	_, err := s.tx.ExecContext(ctx, trimDamageQuery, p, q)
	if err != nil {
		return fmt.Errorf("ошибка очистки износа (%d,%d): %w", p, q, err)
	}
	return nil
}

func (s *MariaStore) SetKey(ctx context.Context, p, q, key int) error {
	_, err := s.tx.ExecContext(ctx, setKeyQuery, p, q, key)
	if err != nil {
		return fmt.Errorf("ошибка записи ключа чанка (%d,%d): %w", p, q, err)
	}
	return nil
}

// CommitAndBegin фиксирует текущую транзакцию записи и открывает следующую.
func (s *MariaStore) CommitAndBegin(ctx context.Context) error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	s.tx = tx
	return nil
}

// Таблички пишутся мимо транзакции worker-а: их пишут потоки игры напрямую,
// через пул соединений.
func (s *MariaStore) InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error {
	_, err := s.db.ExecContext(ctx, insertSignQuery, p, q, pos.X, pos.Y, pos.Z, face, text)
	if err != nil {
		return fmt.Errorf("ошибка записи таблички (%d,%d): %w", p, q, err)
	}
	return nil
}

func (s *MariaStore) DeleteSign(ctx context.Context, pos vec.Vec3, face int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sign WHERE x = ? AND y = ? AND z = ? AND face = ?`,
		pos.X, pos.Y, pos.Z, face)
	if err != nil {
		return fmt.Errorf("ошибка удаления таблички: %w", err)
	}
	return nil
}

func (s *MariaStore) DeleteSigns(ctx context.Context, pos vec.Vec3) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sign WHERE x = ? AND y = ? AND z = ?`,
		pos.X, pos.Y, pos.Z)
	if err != nil {
		return fmt.Errorf("ошибка удаления табличек: %w", err)
	}
	return nil
}

func (s *MariaStore) DeleteAllSigns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sign`)
	if err != nil {
		return fmt.Errorf("ошибка удаления всех табличек: %w", err)
	}
	return nil
}

// SaveState перезаписывает единственную строку состояния игрока.
func (s *MariaStore) SaveState(ctx context.Context, st PlayerState) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM player_state`); err != nil {
		return fmt.Errorf("ошибка очистки состояния игрока: %w", err)
	}

	flying := 0
	if st.Flying {
		flying = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO player_state (x, y, z, rx, ry, flying) VALUES (?, ?, ?, ?, ?, ?)`,
		st.X, st.Y, st.Z, st.RX, st.RY, flying)
	if err != nil {
		return fmt.Errorf("ошибка сохранения состояния игрока: %w", err)
	}
	return nil
}

func (s *MariaStore) LoadState(ctx context.Context) (PlayerState, bool, error) {
	var st PlayerState
	var flying int
	err := s.db.QueryRowContext(ctx,
		`SELECT x, y, z, rx, ry, flying FROM player_state LIMIT 1`).
		Scan(&st.X, &st.Y, &st.Z, &st.RX, &st.RY, &flying)

	if err == sql.ErrNoRows {
		return PlayerState{}, false, nil
	}
	if err != nil {
		return PlayerState{}, false, fmt.Errorf("ошибка загрузки состояния игрока: %w", err)
	}

	st.Flying = flying != 0
	return st, true, nil
}

func (s *MariaStore) LoadBlocks(ctx context.Context, p, q int) ([]BlockRow, error) {
	return s.loadRows(ctx, loadBlocksQuery, p, q)
}

func (s *MariaStore) LoadLights(ctx context.Context, p, q int) ([]BlockRow, error) {
	return s.loadRows(ctx, loadLightsQuery, p, q)
}

// loadRows общая выборка (x, y, z, w) для таблиц block и light.
func (s *MariaStore) loadRows(ctx context.Context, query string, p, q int) ([]BlockRow, error) {
	rows, err := s.db.QueryContext(ctx, query, p, q)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки чанка (%d,%d): %w", p, q, err)
	}
	defer rows.Close()

	var result []BlockRow
	for rows.Next() {
		var row BlockRow
		if err := rows.Scan(&row.Pos.X, &row.Pos.Y, &row.Pos.Z, &row.W); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки чанка (%d,%d): %w", p, q, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *MariaStore) LoadDamage(ctx context.Context, p, q int) ([]DamageRow, error) {
	rows, err := s.db.QueryContext(ctx, loadDamageQuery, p, q)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки износа (%d,%d): %w", p, q, err)
	}
	defer rows.Close()

	var result []DamageRow
	for rows.Next() {
		var row DamageRow
		if err := rows.Scan(&row.Pos.X, &row.Pos.Y, &row.Pos.Z, &row.Damage); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки износа (%d,%d): %w", p, q, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *MariaStore) LoadSigns(ctx context.Context, p, q int) ([]SignRow, error) {
	rows, err := s.db.QueryContext(ctx, loadSignsQuery, p, q)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки табличек (%d,%d): %w", p, q, err)
	}
	defer rows.Close()

	var result []SignRow
	for rows.Next() {
		var row SignRow
		if err := rows.Scan(&row.Pos.X, &row.Pos.Y, &row.Pos.Z, &row.Face, &row.Text); err != nil {
			return nil, fmt.Errorf("ошибка чтения таблички (%d,%d): %w", p, q, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *MariaStore) GetKey(ctx context.Context, p, q int) (int, error) {
	var key int
	err := s.db.QueryRowContext(ctx, getKeyQuery, p, q).Scan(&key)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения ключа чанка (%d,%d): %w", p, q, err)
	}
	return key, nil
}

// Close фиксирует последнюю транзакцию и закрывает соединение с базой.
func (s *MariaStore) Close() error {
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil && err != sql.ErrTxDone {
			s.db.Close()
			return fmt.Errorf("ошибка финальной фиксации: %w", err)
		}
		s.tx = nil
	}
	return s.db.Close()
}
