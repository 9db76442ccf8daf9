package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/room-settlement/internal/config"
	"github.com/iliyamo/room-settlement/internal/notify"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size+int64(len(b)) <= cw.limit {
		cw.buf.Write(b)
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// roomKeyPattern matches every cached response for one room.
func roomKeyPattern(prefix, roomID string) string {
	return fmt.Sprintf("%s:room:%s:*", prefix, roomID)
}

// cacheKeyFrom scopes the key by room so a room notification can drop it,
// and hashes the caller in because views differ per member.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context, roomID string) string {
	r := c.Request()
	tail := strings.Join([]string{currentUserID(c), r.Method, r.URL.Path, r.URL.RawQuery}, "|")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:room:%s:%x", cfg.Prefix, roomID, sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// roomCacheStore holds cached room responses.  Each room has a
// generation that invalidation bumps; setIfGeneration only stores when
// the generation is still the one read before the handler ran, so a
// response built from pre-write state never lands after the write's
// invalidation.
type roomCacheStore interface {
	generation(ctx context.Context, roomID string) (string, error)
	get(ctx context.Context, key string) ([]byte, error)
	setIfGeneration(ctx context.Context, roomID, gen, key string, payload []byte, ttl time.Duration) error
	invalidateRoom(ctx context.Context, roomID string) error
}

// generationTTL outlives any request so a generation cannot expire and
// restart between a read and the matching store.
const generationTTL = 24 * time.Hour

var setIfGenerationScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (cur or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type redisRoomCache struct {
	rdb    *redis.Client
	prefix string
}

// generationKey sits outside roomKeyPattern so SCAN never deletes it.
func generationKey(prefix, roomID string) string {
	return fmt.Sprintf("%s:roomgen:%s", prefix, roomID)
}

func (r *redisRoomCache) generation(ctx context.Context, roomID string) (string, error) {
	gen, err := r.rdb.Get(ctx, generationKey(r.prefix, roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

func (r *redisRoomCache) get(ctx context.Context, key string) ([]byte, error) {
	return r.rdb.Get(ctx, key).Bytes()
}

func (r *redisRoomCache) setIfGeneration(ctx context.Context, roomID, gen, key string, payload []byte, ttl time.Duration) error {
	keys := []string{generationKey(r.prefix, roomID), key}
	return setIfGenerationScript.Run(ctx, r.rdb, keys, gen, payload, ttl.Milliseconds()).Err()
}

// invalidateRoom bumps the generation first, then deletes what is
// already stored.
func (r *redisRoomCache) invalidateRoom(ctx context.Context, roomID string) error {
	gk := generationKey(r.prefix, roomID)
	pipe := r.rdb.TxPipeline()
	pipe.Incr(ctx, gk)
	pipe.Expire(ctx, gk, generationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	iter := r.rdb.Scan(ctx, 0, roomKeyPattern(r.prefix, roomID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// NewRoomCache caches successful reads of routes carrying a room id in
// the named path parameter.  Entries live until TTL or until a
// notification for their room reaches CacheInvalidator.
func NewRoomCache(cfg config.CacheConfig, rdb *redis.Client, param string) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return newRoomCache(cfg, &redisRoomCache{rdb: rdb, prefix: cfg.Prefix}, param)
}

func newRoomCache(cfg config.CacheConfig, store roomCacheStore, param string) echo.MiddlewareFunc {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roomID := c.Param(param)
			if roomID == "" || !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c, roomID)

			if bs, err := store.get(ctx, key); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			gen, err := store.generation(ctx, roomID)
			if err != nil {
				c.Response().Header().Set("X-Cache", "BYPASS")
				return next(c)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				_ = store.setIfGeneration(context.WithoutCancel(ctx), roomID, gen, key, payload, ttl)
			}
			return nil
		}
	}
}

// CacheInvalidator drops cached room responses when a room notification
// arrives.
type CacheInvalidator struct {
	store roomCacheStore
}

func NewCacheInvalidator(cfg config.CacheConfig, rdb *redis.Client) *CacheInvalidator {
	if rdb == nil {
		return &CacheInvalidator{}
	}
	return &CacheInvalidator{store: &redisRoomCache{rdb: rdb, prefix: cfg.Prefix}}
}

// Sink is the notify.Sink form of InvalidateRoom.
func (ci *CacheInvalidator) Sink(ctx context.Context, ev notify.Event) {
	if ci == nil || ci.store == nil {
		return
	}
	kind, id, ok := notify.ParseScope(ev.Scope)
	if !ok || kind != notify.KindRoom {
		return
	}
	if err := ci.InvalidateRoom(ctx, id); err != nil {
		log.Printf("cache: invalidate room %s: %v", id, err)
	}
}

// InvalidateRoom deletes every cached response for roomID and makes
// in-flight misses for it skip their store.
func (ci *CacheInvalidator) InvalidateRoom(ctx context.Context, roomID string) error {
	if ci == nil || ci.store == nil {
		return nil
	}
	return ci.store.invalidateRoom(ctx, roomID)
}
