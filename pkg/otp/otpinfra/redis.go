package otpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/otp"
	"github.com/redis/go-redis/v9"
)

// RedisOTPRepository stores verification codes in Redis. Expiry is delegated
// to key TTLs, and consumption is a Lua compare-and-delete so a code can never
// be redeemed twice.
//
// Key layout:
//
//	otp:{channel}:{identifier}  the record itself (deep_link keys by token)
//	otp:id:{verification_id}    pointer to the record key, same TTL
type RedisOTPRepository struct {
	client *redis.Client
}

func NewRedisOTPRepository(client *redis.Client) otp.Repository {
	return &RedisOTPRepository{client: client}
}

// consumeScript deletes the record (and its pointer key) only when the stored
// code matches, returning the record payload. Runs atomically inside Redis.
var consumeScript = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return false
	end
	local rec = cjson.decode(raw)
	if rec.code ~= ARGV[1] then
		return false
	end
	redis.call('DEL', KEYS[1])
	if rec.id and rec.id ~= '' then
		redis.call('DEL', 'otp:id:' .. rec.id)
	end
	return raw
`)

func recordKey(rec otp.Record) string {
	if rec.Channel == otp.ChannelDeepLink {
		// Deep-link tokens are unique per issue; keying by token lets
		// several live tokens coexist for one identifier.
		return "otp:" + rec.Channel + ":" + rec.Code
	}
	return "otp:" + rec.Channel + ":" + rec.Identifier
}

func pointerKey(id string) string {
	return "otp:id:" + id
}

func (r *RedisOTPRepository) Save(ctx context.Context, rec otp.Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errx.Wrap(err, "failed to encode OTP record", errx.TypeInternal)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec), raw, ttl)
	if rec.ID != "" {
		pipe.Set(ctx, pointerKey(rec.ID), recordKey(rec), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.Wrap(err, "failed to store OTP record", errx.TypeInternal)
	}
	return nil
}

func (r *RedisOTPRepository) Consume(ctx context.Context, identifier, channel, code string) (*otp.Record, error) {
	key := "otp:" + channel + ":" + identifier
	if channel == otp.ChannelDeepLink {
		key = "otp:" + channel + ":" + code
	}
	return r.consume(ctx, key, code)
}

func (r *RedisOTPRepository) ConsumeByID(ctx context.Context, id, code string) (*otp.Record, error) {
	key, err := r.client.Get(ctx, pointerKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, otp.ErrInvalidOrExpired()
		}
		return nil, errx.Wrap(err, "failed to resolve verification id", errx.TypeInternal)
	}
	return r.consume(ctx, key, code)
}

func (r *RedisOTPRepository) consume(ctx context.Context, key, code string) (*otp.Record, error) {
	raw, err := consumeScript.Run(ctx, r.client, []string{key}, code).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, otp.ErrInvalidOrExpired()
		}
		return nil, errx.Wrap(err, "failed to consume OTP record", errx.TypeInternal)
	}

	var rec otp.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errx.Wrap(err, "failed to decode OTP record", errx.TypeInternal)
	}
	return &rec, nil
}
