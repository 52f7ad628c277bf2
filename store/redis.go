package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokeStatusNotFound       int64 = 0
	revokeStatusRevoked        int64 = 1
	revokeStatusAlreadyRevoked int64 = 2
	revokeStatusExpired        int64 = 3
)

// Revocation is a compare-and-set: the transition must be decided and
// applied in one atomic step so that concurrent rotation attempts observe
// exactly one winner.
const revokeScript = `
local revoked = redis.call("HGET", KEYS[1], "revoked")
if revoked == false then
  return 0
end
if revoked == "1" then
  return 2
end

local expires = tonumber(redis.call("HGET", KEYS[1], "expires") or "0")
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])

if expires <= tonumber(ARGV[1]) then
  return 3
end
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local now = tonumber(ARGV[2])
local count = 0

for _, token in ipairs(members) do
  local key = ARGV[1] .. token
  local revoked = redis.call("HGET", key, "revoked")
  if revoked == false then
    redis.call("SREM", KEYS[1], token)
  elseif revoked ~= "1" then
    local expires = tonumber(redis.call("HGET", key, "expires") or "0")
    redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
    if expires > now then
      count = count + 1
    end
  end
end

return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Redis is a Redis-backed [Store]. Records live in hashes with a TTL at the
// record expiry, so revocation markers survive exactly as long as the
// record would have, and natural expiry needs no sweeping. Per-subject
// token sets support revoke-all and counting; the sweep prunes stale set
// members left behind by TTL expiry.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis creates a refresh-token [Store] backed by the given Redis
// client. prefix sets the key namespace.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "mkt"
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Redis) key(token string) string {
	return s.prefix + ":rt:" + token
}

func (s *Redis) subjectKey(subjectID string) string {
	return s.prefix + ":su:" + subjectID
}

// Save persists a record, overwriting any existing entry for the same token
// string.
//
//	Performance: 2-3 Redis commands (HSET + EXPIREAT + index SADD).
func (s *Redis) Save(ctx context.Context, rec Record) error {
	fields := map[string]interface{}{
		"subject":    rec.SubjectID,
		"jti":        rec.TokenID,
		"client":     rec.ClientID,
		"ip":         rec.IP,
		"ua":         rec.UserAgent,
		"created":    rec.CreatedAt.Unix(),
		"expires":    rec.ExpiresAt.Unix(),
		"revoked":    boolField(rec.Revoked),
		"revoked_at": rec.RevokedAt.Unix(),
	}

	key := s.key(rec.Token)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.ExpireAt(ctx, key, rec.ExpiresAt)
		if rec.SubjectID != "" {
			pipe.SAdd(ctx, s.subjectKey(rec.SubjectID), rec.Token)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get retrieves a record snapshot by token, or [ErrNotFound].
//
//	Performance: 1 Redis HGETALL.
func (s *Redis) Get(ctx context.Context, token string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeRecord(token, fields)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke marks the record revoked via an atomic CAS script and reports
// whether this call performed the Active-to-Revoked transition.
//
//	Performance: 1 Lua EVALSHA.
func (s *Redis) Revoke(ctx context.Context, token string, now time.Time) (bool, error) {
	result, err := revokeLua.Run(ctx, s.redis, []string{s.key(token)}, now.Unix()).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid revoke script response", ErrUnavailable)
	}

	switch code {
	case revokeStatusRevoked:
		return true, nil
	case revokeStatusNotFound, revokeStatusAlreadyRevoked, revokeStatusExpired:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown revoke script status", ErrUnavailable)
	}
}

// RevokeAllForSubject revokes every non-revoked record owned by the subject
// and returns the transitioned count.
//
//	Performance: 1 Lua EVALSHA over the subject index set.
func (s *Redis) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error) {
	result, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.subjectKey(subjectID)},
		s.prefix+":rt:",
		now.Unix(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke-all script response", ErrUnavailable)
	}

	return int(count), nil
}

// CountActiveForSubject returns the number of currently valid records owned
// by the subject.
func (s *Redis) CountActiveForSubject(ctx context.Context, subjectID string, now time.Time) (int, error) {
	tokens, err := s.redis.SMembers(ctx, s.subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.SliceCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HMGet(ctx, s.key(token), "revoked", "expires")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	nowUnix := now.Unix()
	var active int
	for _, cmd := range cmds {
		vals, cmdErr := cmd.Result()
		if cmdErr != nil || len(vals) != 2 {
			continue
		}
		revoked, _ := vals[0].(string)
		expiresStr, _ := vals[1].(string)
		expires, err := strconv.ParseInt(expiresStr, 10, 64)
		if err != nil {
			continue
		}
		if revoked != "1" && expires > nowUnix {
			active++
		}
	}

	return active, nil
}

// SweepExpired prunes subject-index members whose record keys have been
// removed by TTL expiry, and deletes empty index sets. Record keys
// themselves are garbage-collected by Redis; the return value counts pruned
// index entries.
//
// This is an O(n) admin operation and must not run in request hot paths.
func (s *Redis) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	pattern := s.prefix + ":su:*"
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, setKey := range keys {
			n, err := s.sweepSubjectSet(ctx, setKey, now)
			if err != nil {
				return removed, err
			}
			removed += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Redis) sweepSubjectSet(ctx context.Context, setKey string, now time.Time) (int, error) {
	tokens, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(tokens) == 0 {
		if err := s.redis.Del(ctx, setKey).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(tokens))
	for i, token := range tokens {
		existsCmds[i] = pipe.Exists(ctx, s.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var dead []interface{}
	for i, cmd := range existsCmds {
		v, cmdErr := cmd.Result()
		if cmdErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}
		if v == 0 {
			dead = append(dead, tokens[i])
		}
	}

	if len(dead) == 0 {
		return 0, nil
	}

	if err := s.redis.SRem(ctx, setKey, dead...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return len(dead), nil
}

func decodeRecord(token string, fields map[string]string) (*Record, error) {
	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created field", ErrUnavailable)
	}
	expires, err := strconv.ParseInt(fields["expires"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expires field", ErrUnavailable)
	}

	rec := &Record{
		Token:     token,
		SubjectID: fields["subject"],
		TokenID:   fields["jti"],
		ClientID:  fields["client"],
		IP:        fields["ip"],
		UserAgent: fields["ua"],
		CreatedAt: time.Unix(created, 0).UTC(),
		ExpiresAt: time.Unix(expires, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
	}

	if rec.Revoked {
		revokedAt, err := strconv.ParseInt(fields["revoked_at"], 10, 64)
		if err == nil && revokedAt > 0 {
			rec.RevokedAt = time.Unix(revokedAt, 0).UTC()
		}
	}

	return rec, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
