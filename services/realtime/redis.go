package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// RedisRelay publishes events on a Redis channel and feeds what it receives back to the local broker,
// so subscribers on every API instance see every change.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Broker
	logger  core.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

var _ core.EventPublisher = (*RedisRelay)(nil)

func NewRedisRelay(conf *core.Config, client *redis.Client, local *Broker, logger core.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: conf.Redis.Channel,
		local:   local,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish falls back to local delivery when Redis is unreachable.
func (r *RedisRelay) Publish(ctx context.Context, evt core.ChangeEvent) {
	payload, err := json.Marshal(evt)
	if err == nil {
		err = r.client.Publish(ctx, r.channel, payload).Err()
	}
	if err != nil {
		r.logger.Warn(fmt.Sprintf("relaying %s %s through redis: %v", evt.Type, evt.Table, err), err)
		r.local.Publish(ctx, evt)
	}
}

// Ready is closed once the relay listens on its channel.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run relays incoming events to the local broker until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribing to "+r.channel)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var evt core.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Error(fmt.Sprintf("decoding relayed event: %v", err), err)
				continue
			}
			r.local.Publish(ctx, evt)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
