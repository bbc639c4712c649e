// Package gcptest provides an in-memory BucketService for tests.
package gcptest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
)

type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailUpload, when set, is returned from every UploadFile call.
	FailUpload error
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: map[string][]byte{}}
}

var _ gcp.BucketService = (*MemoryBucket)(nil)

func objectName(category gcp.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (b *MemoryBucket) UploadFile(dbc dbctx.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	if b.FailUpload != nil {
		return b.FailUpload
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectName(category, key)] = data
	return nil
}

func (b *MemoryBucket) DeleteFile(dbc dbctx.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectName(category, key))
	return nil
}

func (b *MemoryBucket) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	head := objectName(category, "")
	out := []string{}
	for name := range b.objects {
		if !strings.HasPrefix(name, head) {
			continue
		}
		key := strings.TrimPrefix(name, head)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *MemoryBucket) DeletePrefix(ctx context.Context, category gcp.BucketCategory, prefix string) error {
	keys, _ := b.ListKeys(ctx, category, prefix)
	for _, k := range keys {
		_ = b.DeleteFile(dbctx.Context{Ctx: ctx}, category, k)
	}
	return nil
}

func (b *MemoryBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return fmt.Sprintf("https://cdn.test/%s/%s", category, key)
}

// Has reports whether an object exists.
func (b *MemoryBucket) Has(category gcp.BucketCategory, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[objectName(category, key)]
	return ok
}

// Len counts every stored object across categories.
func (b *MemoryBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
