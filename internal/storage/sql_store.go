package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const mysqlSchema = `
	CREATE TABLE IF NOT EXISTS horse_data (
		owner_id   CHAR(36)    NOT NULL,
		slot       INT         NOT NULL,
		data       MEDIUMTEXT  NOT NULL,
		updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
		           ON UPDATE   CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, slot)
	) ENGINE=InnoDB
`

// dialect описывает различия SQL-диалектов
type dialect struct {
	name   string
	upsert string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		upsert: `INSERT INTO horse_data (owner_id, slot, data) VALUES (?, ?, ?)
			ON CONFLICT(owner_id, slot) DO UPDATE SET
				data = excluded.data,
				updated_at = strftime('%s', 'now')`,
	}
	mysqlDialect = dialect{
		name: "mysql",
		upsert: `INSERT INTO horse_data (owner_id, slot, data) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = CURRENT_TIMESTAMP`,
	}
)

// SQLStore хранит записи в таблице horse_data (owner_id, slot, data)
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite открывает (или создает) файл SQLite и применяет схему.
// Путь ":memory:" открывает БД в памяти.
func OpenSQLite(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, wrap("open", Key{}, fmt.Errorf("storage path is required"))
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", Key{}, fmt.Errorf("open sqlite db: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrap("open", Key{}, fmt.Errorf("ping sqlite db: %w", err))
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, wrap("open", Key{}, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, wrap("open", Key{}, fmt.Errorf("apply schema: %w", err))
	}

	return &SQLStore{db: db, dialect: sqliteDialect}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// OpenMySQL подключается к MariaDB/MySQL и создает таблицу, если ее нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func OpenMySQL(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, wrap("open", Key{}, fmt.Errorf("не удалось подключиться к MariaDB: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrap("open", Key{}, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err))
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		db.Close()
		return nil, wrap("open", Key{}, fmt.Errorf("ошибка создания таблицы horse_data: %w", err))
	}
	return &SQLStore{db: db, dialect: mysqlDialect}, nil
}

// Dialect возвращает имя SQL-диалекта
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Upsert вставляет или заменяет запись
func (s *SQLStore) Upsert(ctx context.Context, key Key, data []byte) error {
	if err := validKey(key); err != nil {
		return wrap("upsert", key, err)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, key.Owner.String(), key.Slot, string(data))
	return wrap("upsert", key, err)
}

// Get читает запись
func (s *SQLStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, wrap("get", key, err)
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM horse_data WHERE owner_id = ? AND slot = ?`,
		key.Owner.String(), key.Slot,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return []byte(data), true, nil
}

// Delete удаляет запись. Отсутствие строки не проверяется.
func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return wrap("delete", key, err)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM horse_data WHERE owner_id = ? AND slot = ?`,
		key.Owner.String(), key.Slot,
	)
	return wrap("delete", key, err)
}

// ListSlots возвращает занятые слоты владельца по возрастанию
func (s *SQLStore) ListSlots(ctx context.Context, owner uuid.UUID) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot FROM horse_data WHERE owner_id = ? ORDER BY slot`,
		owner.String(),
	)
	if err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}
	defer rows.Close()

	slots := []int{}
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, wrap("list", Key{Owner: owner}, err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}
	return slots, nil
}

// Close закрывает соединение с базой данных
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
