package embed

import (
	"context"
	"crypto/sha1" //nolint:gosec // cache key, not a security boundary
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// CachedEncoder memoises another encoder in memory and optionally on disk.
type CachedEncoder struct {
	inner Encoder
	dir   string

	mu  sync.RWMutex
	mem map[string][]float32
}

// NewCachedEncoder wraps inner. An empty dir disables the disk cache.
func NewCachedEncoder(inner Encoder, dir string) (*CachedEncoder, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "embed: create cache dir")
		}
	}
	return &CachedEncoder{inner: inner, dir: dir, mem: make(map[string][]float32)}, nil
}

// Encode returns the cached vector for text, computing it on a miss.
func (c *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(Normalize(text))

	c.mu.RLock()
	vec, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return cloneVector(vec), nil
	}

	if vec, err := c.loadFromDisk(key); err == nil {
		c.store(key, vec)
		return cloneVector(vec), nil
	}

	vec, err := c.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(key, vec)
	_ = c.saveToDisk(key, vec)
	return cloneVector(vec), nil
}

// Len returns the number of vectors held in memory.
func (c *CachedEncoder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// ModelID returns the wrapped encoder's model id.
func (c *CachedEncoder) ModelID() string { return c.inner.ModelID() }

// Close closes the wrapped encoder and drops the memory cache.
func (c *CachedEncoder) Close() error {
	c.mu.Lock()
	c.mem = make(map[string][]float32)
	c.mu.Unlock()
	return c.inner.Close()
}

func (c *CachedEncoder) store(key string, vec []float32) {
	c.mu.Lock()
	c.mem[key] = cloneVector(vec)
	c.mu.Unlock()
}

func (c *CachedEncoder) cacheKey(text string) string {
	h := sha1.New() //nolint:gosec
	_, _ = io.WriteString(h, c.inner.ModelID())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEncoder) loadFromDisk(key string) ([]float32, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, eris.Errorf("embed: cache file too small: %s", path)
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != n*4 {
		return nil, eris.Errorf("embed: cache length mismatch: %s", path)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

func (c *CachedEncoder) saveToDisk(key string, vec []float32) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec))) //nolint:gosec
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(v))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return eris.Wrap(err, "embed: write cache")
	}
	return os.Rename(tmp, path)
}
