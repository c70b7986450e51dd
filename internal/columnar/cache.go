// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package columnar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/anitareader/internal/dataerr"
)

// DefaultBlockSize is the unit in which files are read and cached.
const DefaultBlockSize = 1 << 20

// DefaultCacheSize is the default read-ahead budget of one dataset.
const DefaultCacheSize = "1GB"

type blockKey struct {
	path  string
	index int64
}

// BlockCache is a read-ahead cache of file blocks bounded by a byte budget.
// One cache is shared by every reader of a dataset; least recently used
// blocks are evicted once the budget is exceeded.
type BlockCache struct {
	cache     *ttlcache.Cache[blockKey, []byte]
	budget    uint64
	blockSize int64
}

// ParseCacheSize parses a human readable size such as "1GB" or "512MiB".
func ParseCacheSize(s string) (uint64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, &dataerr.ConfigError{Msg: fmt.Sprintf("cache size %q", s), Err: err}
	}
	return n, nil
}

// NewBlockCache creates a cache holding at most budget bytes. A zero budget
// disables caching.
func NewBlockCache(budget uint64) *BlockCache {
	bs := int64(DefaultBlockSize)
	if budget > 0 && budget < uint64(bs) {
		bs = int64(budget)
	}
	c := &BlockCache{budget: budget, blockSize: bs}
	if budget > 0 {
		c.cache = ttlcache.New(
			ttlcache.WithTTL[blockKey, []byte](ttlcache.NoTTL),
			ttlcache.WithMaxCost[blockKey, []byte](budget, func(item ttlcache.CostItem[blockKey, []byte]) uint64 {
				return uint64(len(item.Value))
			}),
		)
	}
	return c
}

// NewBlockCacheFromString is NewBlockCache with a parsed size.
func NewBlockCacheFromString(size string) (*BlockCache, error) {
	n, err := ParseCacheSize(size)
	if err != nil {
		return nil, err
	}
	return NewBlockCache(n), nil
}

// Budget returns the configured byte budget.
func (c *BlockCache) Budget() uint64 { return c.budget }

// Stats returns the cache hit/miss/eviction counters.
func (c *BlockCache) Stats() ttlcache.Metrics {
	if c == nil || c.cache == nil {
		return ttlcache.Metrics{}
	}
	return c.cache.Metrics()
}

// Len is the number of cached blocks.
func (c *BlockCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// Purge drops every cached block.
func (c *BlockCache) Purge() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.DeleteAll()
}

func (c *BlockCache) enabled() bool { return c != nil && c.cache != nil }

func statFile(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// CachedFile is an io.ReaderAt and io.Seeker over a file whose reads go
// through a BlockCache.
type CachedFile struct {
	f     *os.File
	path  string
	size  int64
	off   int64
	cache *BlockCache
}

// OpenCached opens a file for cached reading; cache may be nil.
func OpenCached(path string, cache *BlockCache) (*CachedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &CachedFile{f: f, path: path, size: st.Size(), cache: cache}, nil
}

// Size is the file size in bytes.
func (f *CachedFile) Size() int64 { return f.size }

// ReadAt implements io.ReaderAt.
func (f *CachedFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if !f.cache.enabled() {
		n, err := f.f.ReadAt(p, off)
		bytesReadCounter.Add(context.Background(), int64(n))
		return n, err
	}
	if off >= f.size {
		return 0, io.EOF
	}
	bs := f.cache.blockSize
	n := 0
	for n < len(p) && off+int64(n) < f.size {
		pos := off + int64(n)
		block, err := f.block(pos / bs)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], block[pos%bs:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *CachedFile) block(index int64) ([]byte, error) {
	key := blockKey{path: f.path, index: index}
	if item := f.cache.cache.Get(key); item != nil {
		cacheHitsCounter.Add(context.Background(), 1)
		return item.Value(), nil
	}
	cacheMissesCounter.Add(context.Background(), 1)

	bs := f.cache.blockSize
	start := index * bs
	length := min(bs, f.size-start)
	buf := make([]byte, length)
	n, err := f.f.ReadAt(buf, start)
	bytesReadCounter.Add(context.Background(), int64(n))
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, fmt.Errorf("read block %d of %s: %w", index, f.path, err)
	}
	f.cache.cache.Set(key, buf, ttlcache.DefaultTTL)
	return buf, nil
}

// Seek implements io.Seeker.
func (f *CachedFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.off + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	f.off = abs
	return abs, nil
}

// Read implements io.Reader from the current seek position.
func (f *CachedFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.off)
	f.off += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Close closes the underlying file. Cached blocks stay in the cache.
func (f *CachedFile) Close() error {
	return f.f.Close()
}
