package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore хранит записи владельца в одном хеше Redis:
// ключ <prefix><uuid владельца>, поле - номер слота, значение - текст записи.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "horsestore:owner:",
	}
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrap("open", Key{}, fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return &RedisStore{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (s *RedisStore) ownerKey(owner uuid.UUID) string {
	return s.keyPrefix + owner.String()
}

// Upsert записывает поле хеша владельца
func (s *RedisStore) Upsert(ctx context.Context, key Key, data []byte) error {
	if err := validKey(key); err != nil {
		return wrap("upsert", key, err)
	}
	err := s.client.HSet(ctx, s.ownerKey(key.Owner), strconv.Itoa(key.Slot), data).Err()
	return wrap("upsert", key, err)
}

// Get читает поле хеша владельца
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, wrap("get", key, err)
	}
	data, err := s.client.HGet(ctx, s.ownerKey(key.Owner), strconv.Itoa(key.Slot)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return data, true, nil
}

// Delete удаляет поле. HDEL отсутствующего поля возвращает 0 без ошибки.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return wrap("delete", key, err)
	}
	err := s.client.HDel(ctx, s.ownerKey(key.Owner), strconv.Itoa(key.Slot)).Err()
	return wrap("delete", key, err)
}

// ListSlots возвращает занятые слоты владельца по возрастанию
func (s *RedisStore) ListSlots(ctx context.Context, owner uuid.UUID) ([]int, error) {
	fields, err := s.client.HKeys(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}

	slots := make([]int, 0, len(fields))
	for _, f := range fields {
		slot, err := strconv.Atoi(f)
		if err != nil {
			continue // Посторонние поля игнорируются
		}
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots, nil
}

// Close закрывает соединение с Redis
func (s *RedisStore) Close() error {
	return s.client.Close()
}
