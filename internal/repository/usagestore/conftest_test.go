package usagestore

import (
	"context"
	"time"

	"github.com/chronolens/chronolens/internal/db"
)

// fakeKV implements the consumer interface for tests.
type fakeKV struct {
	values map[string]string

	incrKey   string
	incrVal   int64
	expireKey string
	expireTTL time.Duration
	expireNX  bool

	getErr  error
	incrErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(v), nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) error {
	if f.incrErr != nil {
		return f.incrErr
	}
	f.incrKey = key
	f.incrVal = val
	return nil
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	f.expireKey = key
	f.expireTTL = ttl
	f.expireNX = nx
	return nil
}
