// Package sequence hands out atomic, gap-tolerant counters used to number
// repair requests.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Generator returns the next value of a named counter. When tx is non-nil
// and the backend is transactional, the increment joins that transaction.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, name string) (int64, error)
}

// Floorer is implemented by generators that can be moved past values
// already consumed elsewhere, such as imported or hand-numbered rows.
type Floorer interface {
	// AtLeast raises name to floor when it is lower. It never lowers a counter.
	AtLeast(ctx context.Context, name string, floor int64) error
}

// DBCounter keeps counters in the sequence_counters table. The increment is
// a single upsert, so the row lock serializes concurrent callers.
type DBCounter struct {
	db *gorm.DB
}

// NewDBCounter creates a table-backed generator.
func NewDBCounter(db *gorm.DB) *DBCounter {
	return &DBCounter{db: db}
}

// Next increments name and returns the new value, starting at 1.
func (c *DBCounter) Next(ctx context.Context, tx *gorm.DB, name string) (int64, error) {
	if tx == nil {
		var v int64
		err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			v, err = c.next(tx, name)
			return err
		})
		return v, err
	}
	return c.next(tx, name)
}

func (c *DBCounter) next(tx *gorm.DB, name string) (int64, error) {
	row := models.SequenceCounter{Name: name, Value: 1, UpdatedAt: time.Now()}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      gorm.Expr("value + 1"),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("sequence: increment %s: %w", name, err)
	}
	var current models.SequenceCounter
	if err := tx.Where("name = ?", name).First(&current).Error; err != nil {
		return 0, fmt.Errorf("sequence: read %s: %w", name, err)
	}
	return current.Value, nil
}

// AtLeast raises name to floor in its own transaction.
func (c *DBCounter) AtLeast(ctx context.Context, name string, floor int64) error {
	row := models.SequenceCounter{Name: name, Value: floor, UpdatedAt: time.Now()}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      gorm.Expr("CASE WHEN value < ? THEN ? ELSE value END", floor, floor),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sequence: raise %s to %d: %w", name, floor, err)
	}
	return nil
}

// RedisCounter keeps counters in Redis with INCR. Values consumed by a
// rolled-back transaction are not reused.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a Redis-backed generator.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "gmao:seq:"}
}

// Next increments name and returns the new value, starting at 1.
func (c *RedisCounter) Next(ctx context.Context, _ *gorm.DB, name string) (int64, error) {
	v, err := c.client.Incr(ctx, c.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence: redis incr %s: %w", name, err)
	}
	return v, nil
}

var atLeastScript = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v < tonumber(ARGV[1]) then
  redis.call('SET', KEYS[1], ARGV[1])
end
return 0
`)

// AtLeast raises name to floor atomically.
func (c *RedisCounter) AtLeast(ctx context.Context, name string, floor int64) error {
	if err := atLeastScript.Run(ctx, c.client, []string{c.prefix + name}, floor).Err(); err != nil {
		return fmt.Errorf("sequence: redis raise %s to %d: %w", name, floor, err)
	}
	return nil
}

// NewRedisClient opens a Redis client and checks connectivity.
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("sequence: redis ping %s: %w", addr, err)
	}
	return client, nil
}

// YearKey is the counter name used for repair request numbers of a year.
func YearKey(prefix string, year int) string {
	return fmt.Sprintf("%s:%d", prefix, year)
}
