package storage

import (
	"context"
	"fmt"
)

// Поддерживаемые драйверы хранилища
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// Drivers перечисляет все поддерживаемые драйверы
func Drivers() []string {
	return []string{DriverBadger, DriverSQLite, DriverMySQL, DriverRedis, DriverMemory}
}

// Config выбирает и настраивает реализацию Store
type Config struct {
	Driver string
	Path   string // Каталог BadgerDB или файл SQLite
	DSN    string // Строка подключения MySQL
	Redis  RedisConfig
}

// Open создает хранилище по конфигурации
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverBadger:
		s, err := NewBadgerStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMySQL:
		s, err := OpenMySQL(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		redisCfg := cfg.Redis
		s, err := NewRedisStore(ctx, &redisCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, wrap("open", Key{}, fmt.Errorf("unknown storage driver %q", cfg.Driver))
	}
}
