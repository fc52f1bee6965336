// Package redis provides a Custodian backed by Redis, for deployments where
// balances must survive a restart or be shared with other services. Balance
// moves run as Lua scripts so each transfer is atomic on the server.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erain9/deepmatch/pkg/core"
)

// RedisOptions represents configuration options for a Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr: "localhost:6379",
}

// SetDefaultRedisOptions sets the default options for Redis connections.
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options.
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// Each user/asset pair is one hash with "available" and "locked" fields.
// The scripts fail the transfer and leave the hash untouched when the source
// field is short.
var (
	debitScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local amt = tonumber(ARGV[2])
if cur < amt then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], cur - amt)
return 1`)

	moveScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local amt = tonumber(ARGV[3])
if cur < amt then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], cur - amt)
redis.call('HINCRBY', KEYS[1], ARGV[2], amt)
return 1`)
)

// Custodian stores balances in Redis. Amounts are limited to what a Redis
// integer holds; that is ample for scaled asset units.
type Custodian struct {
	client *redis.Client
	ctx    context.Context
	prefix string
	logger *zap.Logger
}

// NewCustodian creates a Custodian on the given client. All keys are
// namespaced under prefix so several markets can share one Redis.
func NewCustodian(client *redis.Client, prefix string, logger *zap.Logger) *Custodian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Custodian{
		client: client,
		ctx:    context.Background(),
		prefix: prefix,
		logger: logger,
	}
}

func (c *Custodian) balanceKey(user, asset string) string {
	return fmt.Sprintf("%s:balance:%s:%s", c.prefix, user, asset)
}

// Deposit credits amount to the user's available balance.
func (c *Custodian) Deposit(user, asset string, amount uint64) {
	c.IncreaseAvailable(user, asset, amount)
}

// Withdraw debits amount from the user's available balance.
func (c *Custodian) Withdraw(user, asset string, amount uint64) error {
	return c.debit(user, asset, "available", amount)
}

// AvailableBalance returns the user's spendable balance of asset. Transport
// failures are logged and read as zero, which fails operations closed.
func (c *Custodian) AvailableBalance(user, asset string) uint64 {
	return c.field(user, asset, "available")
}

// LockedBalance returns the user's balance of asset held by open orders.
func (c *Custodian) LockedBalance(user, asset string) uint64 {
	return c.field(user, asset, "locked")
}

// IncreaseAvailable credits amount to the user's available balance.
func (c *Custodian) IncreaseAvailable(user, asset string, amount uint64) {
	err := c.client.HIncrBy(c.ctx, c.balanceKey(user, asset), "available", int64(amount)).Err()
	if err != nil {
		c.logger.Error("failed to credit balance",
			zap.String("user", user),
			zap.String("asset", asset),
			zap.Uint64("amount", amount),
			zap.Error(err))
	}
}

// DecreaseAvailable debits amount from the user's available balance.
func (c *Custodian) DecreaseAvailable(user, asset string, amount uint64) error {
	return c.debit(user, asset, "available", amount)
}

// LockBalance moves amount from available to locked.
func (c *Custodian) LockBalance(user, asset string, amount uint64) error {
	return c.move(user, asset, "available", "locked", amount)
}

// UnlockBalance moves amount from locked back to available.
func (c *Custodian) UnlockBalance(user, asset string, amount uint64) error {
	return c.move(user, asset, "locked", "available", amount)
}

// DecreaseLocked debits amount from the user's locked balance.
func (c *Custodian) DecreaseLocked(user, asset string, amount uint64) error {
	return c.debit(user, asset, "locked", amount)
}

func (c *Custodian) field(user, asset, field string) uint64 {
	val, err := c.client.HGet(c.ctx, c.balanceKey(user, asset), field).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("failed to read balance",
				zap.String("user", user),
				zap.String("asset", asset),
				zap.Error(err))
		}
		return 0
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		c.logger.Error("corrupt balance value",
			zap.String("key", c.balanceKey(user, asset)),
			zap.String("value", val),
			zap.Error(err))
		return 0
	}
	return n
}

func (c *Custodian) debit(user, asset, field string, amount uint64) error {
	ok, err := debitScript.Run(c.ctx, c.client,
		[]string{c.balanceKey(user, asset)}, field, amount).Int()
	if err != nil {
		return fmt.Errorf("debit %s/%s: %w", user, asset, err)
	}
	if ok == 0 {
		return core.ErrInsufficientFunds
	}
	return nil
}

func (c *Custodian) move(user, asset, from, to string, amount uint64) error {
	ok, err := moveScript.Run(c.ctx, c.client,
		[]string{c.balanceKey(user, asset)}, from, to, amount).Int()
	if err != nil {
		return fmt.Errorf("move %s/%s: %w", user, asset, err)
	}
	if ok == 0 {
		return core.ErrInsufficientFunds
	}
	return nil
}
