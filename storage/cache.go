package storage

import (
	"context"
	"errors"
	"time"

	"Soundy/logger"

	"github.com/redis/go-redis/v9"
)

const segmentKeyPrefix = "soundy:segment:"

// CachedStore keeps recently served segments in Redis in front of a slower store. Manifests are
// always read through, since live playlists change between reads. A failing cache never fails a
// read.
type CachedStore struct {
	MediaStore

	rdb redis.UniversalClient
	ttl time.Duration
}

func NewCachedStore(backend MediaStore, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{MediaStore: backend, rdb: rdb, ttl: ttl}
}

func segmentKey(trackID, name string) string {
	return segmentKeyPrefix + trackID + ":" + name
}

func (c *CachedStore) Get(ctx context.Context, trackID, name string) ([]byte, string, error) {
	if name == ManifestName {
		return c.MediaStore.Get(ctx, trackID, name)
	}
	if _, err := objectKey(trackID, name); err != nil {
		return nil, "", err
	}

	key := segmentKey(trackID, name)
	if data := c.getCached(ctx, key); data != nil {
		return data, ContentType(name), nil
	}

	data, contentType, err := c.MediaStore.Get(ctx, trackID, name)
	if err != nil {
		return nil, "", err
	}
	c.setCached(ctx, key, data)
	return data, contentType, nil
}

// Put writes through and drops any cached copy.
func (c *CachedStore) Put(ctx context.Context, trackID, name string, data []byte) error {
	if err := c.MediaStore.Put(ctx, trackID, name, data); err != nil {
		return err
	}
	if name == ManifestName {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.rdb.Del(ctx, segmentKey(trackID, name)).Err(); err != nil {
		logger.Warn("[Cache] 删除分片缓存失败", logger.String("trackId", trackID), logger.String("name", name), logger.ErrorField(err))
	}
	return nil
}

// getCached returns nil on a miss or a cache failure.
func (c *CachedStore) getCached(ctx context.Context, key string) []byte {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		logger.Debug("[Cache] 分片缓存未命中", logger.String("key", key))
		return nil
	case err != nil:
		logger.Warn("[Cache] 获取分片缓存失败，回源读取", logger.String("key", key), logger.ErrorField(err))
		return nil
	}
	return data
}

func (c *CachedStore) setCached(ctx context.Context, key string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("[Cache] 设置分片缓存失败", logger.String("key", key), logger.Int("dataSize", len(data)), logger.ErrorField(err))
		return
	}
	logger.Debug("[Cache] 分片缓存设置成功", logger.String("key", key), logger.Duration("expiration", c.ttl))
}
