package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/redis/go-redis/v9"
)

const (
	configsKey         = "ticketing:configs"
	allReservationsKey = "reservations:all"
	maxUpdateRetries   = 5
)

func configKey(eventID string) string {
	return fmt.Sprintf("ticketing:config:%s", eventID)
}

func reservationKey(id string) string {
	return fmt.Sprintf("reservation:%s", id)
}

func reservationCodeKey(code string) string {
	return fmt.Sprintf("reservation:code:%s", code)
}

func eventReservationsKey(eventID string) string {
	return fmt.Sprintf("reservations:event:%s", eventID)
}

// RedisStore keeps records as JSON strings with set indexes per event.
type RedisStore struct {
	Redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{Redis: redisClient}
}

func (s *RedisStore) SaveConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, configKey(cfg.EventID), string(data), 0)
		pipe.SAdd(ctx, configsKey, cfg.EventID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save configuration %s: %w", cfg.EventID, err)
	}
	return nil
}

func (s *RedisStore) ListConfigurations(ctx context.Context) ([]*models.EventTicketConfiguration, error) {
	eventIDs, err := s.Redis.SMembers(ctx, configsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	if len(eventIDs) == 0 {
		return []*models.EventTicketConfiguration{}, nil
	}

	keys := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		keys[i] = configKey(id)
	}
	values, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load configurations: %w", err)
	}

	configs := make([]*models.EventTicketConfiguration, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cfg models.EventTicketConfiguration
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			slog.Error("Skipping unreadable configuration", "key", keys[i], "error", err)
			continue
		}
		configs = append(configs, &cfg)
	}
	return configs, nil
}

func (s *RedisStore) SaveReservation(ctx context.Context, r *models.Reservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}

	claimed, err := s.Redis.SetNX(ctx, reservationCodeKey(r.Code), r.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim reservation code: %w", err)
	}
	if !claimed {
		return status.ErrDuplicateCode
	}

	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, reservationKey(r.ID), string(data), 0)
		pipe.SAdd(ctx, eventReservationsKey(r.EventID), r.ID)
		pipe.SAdd(ctx, allReservationsKey, r.ID)
		return nil
	})
	if err != nil {
		s.Redis.Del(ctx, reservationCodeKey(r.Code))
		return fmt.Errorf("save reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *RedisStore) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	raw, err := s.Redis.Get(ctx, reservationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return decodeReservation(raw)
}

func (s *RedisStore) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	id, err := s.Redis.Get(ctx, reservationCodeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve reservation code: %w", err)
	}
	return s.GetReservation(ctx, id)
}

func (s *RedisStore) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := s.Redis.Exists(ctx, reservationCodeKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("check reservation code: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) ListReservations(ctx context.Context, eventID string) ([]*models.Reservation, error) {
	indexKey := allReservationsKey
	if eventID != "" {
		indexKey = eventReservationsKey(eventID)
	}

	ids, err := s.Redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Reservation{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reservationKey(id)
	}
	values, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	list := make([]*models.Reservation, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeReservation(raw)
		if err != nil {
			slog.Error("Skipping unreadable reservation", "key", keys[i], "error", err)
			continue
		}
		list = append(list, r)
	}
	sortReservations(list)
	return list, nil
}

// UpdateReservation runs fn inside an optimistic WATCH transaction and
// retries when another writer touched the record first.
func (s *RedisStore) UpdateReservation(ctx context.Context, id string, fn UpdateFunc) (*models.Reservation, bool, error) {
	key := reservationKey(id)

	var (
		result  *models.Reservation
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return status.ErrReservationNotFound
		}
		if err != nil {
			return err
		}

		r, err := decodeReservation(raw)
		if err != nil {
			return err
		}
		result, changed = r, false

		ok, err := fn(r)
		if err != nil || !ok {
			return err
		}

		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.Redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, changed, err
	}
	return nil, false, fmt.Errorf("update reservation %s: too much contention", id)
}

func decodeReservation(raw string) (*models.Reservation, error) {
	var r models.Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode reservation: %w", err)
	}
	return &r, nil
}
