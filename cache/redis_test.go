package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"loanflow/utils"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisLocker_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	locker := NewRedisLocker(rdb, 0)
	assert.Equal(t, 30*time.Second, locker.ttl)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	unlock, err := locker.Lock(ctx, "loan:1")
	assert.Error(t, err)
	assert.Nil(t, unlock)
}

func TestReleaser_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := utils.SetLogOutput(&buf)
	defer utils.SetLogOutput(prev)

	called := false
	releaser("loan:7", func(ctx context.Context) error {
		called = true
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return redislock.ErrLockNotHeld
	})()

	assert.True(t, called)
	out := buf.String()
	assert.Contains(t, out, `"module":"cache"`)
	assert.Contains(t, out, `"context":"release loan:7"`)
	assert.Contains(t, out, redislock.ErrLockNotHeld.Error())
}

func TestReleaser_SilentOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	prev := utils.SetLogOutput(&buf)
	defer utils.SetLogOutput(prev)

	releaser("loan:8", func(context.Context) error { return nil })()
	assert.Empty(t, buf.String())
}
