// Package redisexec is a Redis-backed executor. Submitted work is pushed onto a list queue,
// delayed work waits in a sorted set until it is due, and task status lives in keys with a TTL.
package redisexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/target/jobtrack/internal/core"
	"github.com/target/jobtrack/internal/domain/model"
)

const (
	defaultQueue     = "default"
	defaultStatusTTL = 24 * time.Hour
	keyPrefix        = "jobtrack:"
	promoteBatch     = 100
)

var errDecode = errors.New("decode delivery")

// promoteScript moves due members of the delayed set onto the ready list in one step so
// two workers never promote the same delivery.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// ClientOptions configures a Client.
type ClientOptions struct {
	Redis redis.UniversalClient // Required
	// Queue namespaces the ready and delayed keys. Defaults to "default".
	Queue string
	// StatusTTL is how long a status entry lives after its last update. Defaults to 24h.
	StatusTTL time.Duration
	Now       func() time.Time
}

// Client submits work to a Redis queue and reads and writes task status.
type Client struct {
	rdb        redis.UniversalClient
	readyKey   string
	delayedKey string
	statusTTL  time.Duration
	now        func() time.Time
}

var _ core.Executor = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Queue == "" {
		opts.Queue = defaultQueue
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = defaultStatusTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		rdb:        opts.Redis,
		readyKey:   keyPrefix + opts.Queue + ":ready",
		delayedKey: keyPrefix + opts.Queue + ":delayed",
		statusTTL:  opts.StatusTTL,
		now:        opts.Now,
	}, nil
}

// MustNewClient is like NewClient but panics on error.
func MustNewClient(opts ClientOptions) *Client {
	c, err := NewClient(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor
	}
	return c
}

func statusKey(handle string) string { return keyPrefix + "status:" + handle }

// Submit enqueues req and returns its handle. A positive Delay parks the delivery in the
// delayed set until it is due.
func (c *Client) Submit(ctx context.Context, req core.SubmitRequest) (string, error) {
	if req.Kind == "" {
		return "", errors.New("kind is required")
	}
	d := core.Delivery{
		Handle:     uuid.NewString(),
		Kind:       req.Kind,
		Parameters: req.Parameters,
		Metadata:   req.Metadata,
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode delivery: %w", err)
	}

	if req.Delay > 0 {
		due := c.now().Add(req.Delay).UnixMilli()
		if err := c.rdb.ZAdd(ctx, c.delayedKey, redis.Z{Score: float64(due), Member: payload}).Err(); err != nil {
			return "", fmt.Errorf("enqueue delayed: %w", err)
		}
		return d.Handle, nil
	}
	if err := c.rdb.LPush(ctx, c.readyKey, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return d.Handle, nil
}

// QueryStatus returns the stored status for handle, or unknown when none exists or it expired.
func (c *Client) QueryStatus(ctx context.Context, handle string) (*model.ExecutorStatus, error) {
	raw, err := c.rdb.Get(ctx, statusKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &model.ExecutorStatus{State: model.ExecutorStateUnknown}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var st model.ExecutorStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// SetStatus stores the status for handle and refreshes its TTL.
func (c *Client) SetStatus(ctx context.Context, handle string, state model.ExecutorState, info json.RawMessage) error {
	if handle == "" {
		return errors.New("handle is required")
	}
	if !state.Valid() {
		return fmt.Errorf("invalid executor state %q", state)
	}
	data, err := json.Marshal(model.ExecutorStatus{State: state, Info: info, UpdatedAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return c.rdb.Set(ctx, statusKey(handle), data, c.statusTTL).Err()
}

// Promote moves due deliveries from the delayed set onto the ready queue.
func (c *Client) Promote(ctx context.Context) (int, error) {
	now := strconv.FormatInt(c.now().UnixMilli(), 10)
	n, err := promoteScript.Run(ctx, c.rdb, []string{c.delayedKey, c.readyKey}, now, promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed: %w", err)
	}
	return n, nil
}

// Depth reports the number of ready and delayed deliveries.
func (c *Client) Depth(ctx context.Context) (ready, delayed int64, err error) {
	pipe := c.rdb.Pipeline()
	r := pipe.LLen(ctx, c.readyKey)
	d := pipe.ZCard(ctx, c.delayedKey)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return r.Val(), d.Val(), nil
}

// pop blocks up to timeout for the next ready delivery. ok is false on timeout.
func (c *Client) pop(ctx context.Context, timeout time.Duration) (core.Delivery, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, c.readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return core.Delivery{}, false, nil
	}
	if err != nil {
		return core.Delivery{}, false, err
	}
	// res is [key, value]
	var d core.Delivery
	if err := json.Unmarshal([]byte(res[1]), &d); err != nil {
		return core.Delivery{}, false, fmt.Errorf("%w: %w", errDecode, err)
	}
	return d, true, nil
}
