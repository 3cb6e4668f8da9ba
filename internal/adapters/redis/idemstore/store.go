// Package idemstore implements the idempotency ledger on Redis. Records
// expire after a configurable TTL, so the ledger stays bounded without a
// sweeper.
package idemstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

var claimScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]
local ttl_ms = ARGV[2]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "fingerprint", fingerprint, "status", "in_progress")
  redis.call("PEXPIRE", key, ttl_ms)
  return {"new"}
end

local existing_fp = redis.call("HGET", key, "fingerprint")
if existing_fp ~= fingerprint then
  return {"key_reuse"}
end

local status = redis.call("HGET", key, "status")
if status == "completed" then
  return {"replay", redis.call("HGET", key, "response_status") or "", redis.call("HGET", key, "response_body") or ""}
end

return {"in_progress"}
`)

var completeScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]
local ttl_ms = ARGV[2]
local status_code = ARGV[3]
local response_body = ARGV[4]

if redis.call("EXISTS", key) == 0 then
  return 0
end
if redis.call("HGET", key, "fingerprint") ~= fingerprint then
  return -1
end
if redis.call("HGET", key, "status") == "completed" then
  return 0
end

redis.call("HSET", key, "status", "completed", "response_status", status_code, "response_body", response_body)
redis.call("PEXPIRE", key, ttl_ms)
return 1
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]

if redis.call("EXISTS", key) == 0 then
  return 0
end
if redis.call("HGET", key, "fingerprint") ~= fingerprint then
  return 0
end
if redis.call("HGET", key, "status") == "completed" then
  return 0
end

redis.call("DEL", key)
return 1
`)

type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "idem"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(actorID domain.UserID, action, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, actorID, action, key)
}

func (s *Store) Claim(ctx context.Context, c idemstore.Claim) (idemstore.Result, error) {
	raw, err := claimScript.Run(
		ctx,
		s.client,
		[]string{s.key(c.ActorID, c.Action, c.Key)},
		c.Fingerprint,
		int(s.ttl/time.Millisecond),
	).Result()
	if err != nil {
		return idemstore.Result{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return idemstore.Result{}, fmt.Errorf("unexpected claim result type %T", raw)
	}
	switch state := asString(values[0]); state {
	case "new":
		return idemstore.Result{State: idemstore.StateNew}, nil
	case "key_reuse":
		return idemstore.Result{State: idemstore.StateKeyReuse}, nil
	case "in_progress":
		return idemstore.Result{State: idemstore.StateInProgress}, nil
	case "replay":
		if len(values) < 3 {
			return idemstore.Result{}, fmt.Errorf("unexpected replay payload")
		}
		status, parseErr := strconv.Atoi(asString(values[1]))
		if parseErr != nil {
			return idemstore.Result{}, fmt.Errorf("parse replay status: %w", parseErr)
		}
		body, decodeErr := base64.StdEncoding.DecodeString(asString(values[2]))
		if decodeErr != nil {
			return idemstore.Result{}, fmt.Errorf("decode replay body: %w", decodeErr)
		}
		return idemstore.Result{
			State:    idemstore.StateReplay,
			Response: &idemstore.Response{Status: status, Body: body},
		}, nil
	default:
		return idemstore.Result{}, fmt.Errorf("unknown claim state %q", state)
	}
}

func (s *Store) Complete(ctx context.Context, c idemstore.Claim, resp idemstore.Response) error {
	_, err := completeScript.Run(
		ctx,
		s.client,
		[]string{s.key(c.ActorID, c.Action, c.Key)},
		c.Fingerprint,
		int(s.ttl/time.Millisecond),
		resp.Status,
		base64.StdEncoding.EncodeToString(resp.Body),
	).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, c idemstore.Claim) error {
	_, err := releaseScript.Run(
		ctx,
		s.client,
		[]string{s.key(c.ActorID, c.Action, c.Key)},
		c.Fingerprint,
	).Result()
	if err != nil {
		return fmt.Errorf("release idempotency record: %w", err)
	}
	return nil
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}
