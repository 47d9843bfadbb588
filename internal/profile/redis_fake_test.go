package profile_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the string commands the stores use. Calling any
// other redis.Cmdable method panics on the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	vals map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{vals: map[string]string{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.vals[key] = string(v)
	case string:
		f.vals[key] = v
	default:
		f.vals[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.vals))
	for k := range f.vals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
