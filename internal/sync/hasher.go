package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// DefaultBlockSize is the read granularity of the hasher. Files are streamed
// in blocks of this size, so memory use is independent of file size.
const DefaultBlockSize = 4096

// Fingerprint is the lowercase hex MD5 digest of a file's full byte content.
// Equal fingerprints mean equal contents for sync purposes.
type Fingerprint string

type hashCacheEntry struct {
	size    int64
	modTime time.Time
	sum     Fingerprint
}

// Hasher computes content fingerprints for files on the given filesystem.
type Hasher struct {
	fs        afero.Fs
	log       *slog.Logger
	blockSize int
	cache     *lru.Cache[string, hashCacheEntry]
}

func NewHasher(fs afero.Fs, log *slog.Logger) *Hasher {
	return &Hasher{
		fs:        fs,
		log:       log,
		blockSize: DefaultBlockSize,
	}
}

// SetBlockSize overrides the read block size.
func (h *Hasher) SetBlockSize(size int) {
	if size > 0 {
		h.blockSize = size
	}
}

// EnableCache keeps up to size fingerprints keyed by path, invalidated by
// file size and modification time. Without it every Hash call re-reads the
// file from the start.
func (h *Hasher) EnableCache(size int) error {
	cache, err := lru.New[string, hashCacheEntry](size)
	if err != nil {
		return fmt.Errorf("failed to create hash cache: %w", err)
	}
	h.cache = cache
	return nil
}

// Hash streams the file at path block by block through an MD5 accumulator
// and returns the final digest.
func (h *Hasher) Hash(path string) (Fingerprint, error) {
	var size int64
	var modTime time.Time

	if h.cache != nil {
		info, err := h.fs.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		size, modTime = info.Size(), info.ModTime()

		if entry, ok := h.cache.Get(path); ok && entry.size == size && entry.modTime.Equal(modTime) {
			h.log.Debug("hash cache hit", "path", path)
			return entry.sum, nil
		}
	}

	file, err := h.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	digest := md5.New()
	buf := make([]byte, h.blockSize)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, readErr)
		}
	}

	sum := Fingerprint(fmt.Sprintf("%x", digest.Sum(nil)))

	if h.cache != nil {
		h.cache.Add(path, hashCacheEntry{size: size, modTime: modTime, sum: sum})
	}

	return sum, nil
}
