// Package queue holds received backup result notifications in Redis until a worker ingests them.
//
// Queued message ids are kept in a list and message bodies in a hash per message. A dequeued id is moved to
// an in-flight sorted set scored by its visibility deadline; ids still in flight after their deadline are
// pushed back on the list, so a message that is never resolved is redelivered.
package queue

import (
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/model"
)

const (
	pendingKey        = "pending"
	inflightKey       = "inflight"
	messagePrefix     = "message:"
	bodyField         = "body"
	receiveCountField = "receiveCount"
)

// Pops the next pending id and marks it in flight until ARGV[1].
// Returns nil when nothing is pending, or just the id when its message hash is gone.
var dequeueScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
local key = KEYS[3] .. id
if redis.call('EXISTS', key) == 0 then
	return {id}
end
local count = redis.call('HINCRBY', key, 'receiveCount', 1)
return {id, redis.call('HGET', key, 'body'), count}
`)

// Moves ids whose visibility deadline is at or before ARGV[1] back to the pending list.
var requeueScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('RPUSH', KEYS[2], id)
end
return #expired
`)

type RedisQueue struct {
	db                redis.UniversalClient
	keyPrefix         string
	visibilityTimeout time.Duration
	now               func() time.Time
}

func NewRedisQueue(db redis.UniversalClient, config configuration.QueueConfig) *RedisQueue {
	return &RedisQueue{
		db:                db,
		keyPrefix:         config.KeyPrefix,
		visibilityTimeout: config.VisibilityTimeout,
		now:               time.Now,
	}
}

func (q *RedisQueue) key(name string) string {
	return q.keyPrefix + ":" + name
}

func (q *RedisQueue) messageKey(id string) string {
	return q.key(messagePrefix) + id
}

// GetAvailableReceivedBackupResults returns the number of pending messages, including those whose visibility
// timeout has expired.
func (q *RedisQueue) GetAvailableReceivedBackupResults(ctx *bmcontext.Context) (int, error) {
	if err := q.requeueExpired(ctx); err != nil {
		return 0, err
	}
	n, err := q.db.LLen(q.key(pendingKey)).Result()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(n), nil
}

func (q *RedisQueue) QueueReceivedBackupResult(ctx *bmcontext.Context, payload []byte) error {
	id := util.NewULID()
	pipe := q.db.TxPipeline()
	pipe.HMSet(q.messageKey(id), map[string]interface{}{
		bodyField:         payload,
		receiveCountField: 0,
	})
	pipe.LPush(q.key(pendingKey), id)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "error queueing message %s", id)
	}
	ctx.Log.WithField("messageId", id).Debug("Queued received backup result")
	return nil
}

func (q *RedisQueue) DequeueReceivedBackupResults(ctx *bmcontext.Context, max int) ([]*model.QueueMessage, error) {
	if err := q.requeueExpired(ctx); err != nil {
		return nil, err
	}

	deadline := q.now().Add(q.visibilityTimeout).UnixMilli()
	keys := []string{q.key(pendingKey), q.key(inflightKey), q.key(messagePrefix)}
	messages := make([]*model.QueueMessage, 0, max)
	for len(messages) < max {
		if err := ctx.Err(); err != nil {
			break
		}
		result, err := dequeueScript.Run(q.db, keys, deadline).Result()
		if err == redis.Nil {
			break
		} else if err != nil {
			return messages, errors.Wrap(err, "error dequeuing message")
		}

		values, ok := result.([]interface{})
		if !ok || len(values) == 0 {
			return messages, errors.Errorf("unexpected dequeue result %v", result)
		}
		id, _ := values[0].(string)
		if len(values) < 3 {
			ctx.Log.WithField("messageId", id).Warn("Dropping queued id with no message")
			if err := q.db.ZRem(q.key(inflightKey), id).Err(); err != nil {
				return messages, errors.WithStack(err)
			}
			continue
		}
		body, _ := values[1].(string)
		count, _ := values[2].(int64)
		messages = append(messages, &model.QueueMessage{
			Id:           id,
			Body:         []byte(body),
			ReceiveCount: count,
		})
	}
	return messages, nil
}

func (q *RedisQueue) ResolveReceivedBackupResult(_ *bmcontext.Context, msg *model.QueueMessage) error {
	pipe := q.db.TxPipeline()
	pipe.ZRem(q.key(inflightKey), msg.Id)
	pipe.Del(q.messageKey(msg.Id))
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "error resolving message %s", msg.Id)
	}
	return nil
}

// ExtractPayload returns the payload as it was queued; messages are stored unwrapped.
func (q *RedisQueue) ExtractPayload(ingestId string, msg *model.QueueMessage) ([]byte, error) {
	if len(msg.Body) == 0 {
		return nil, errors.Errorf("message %s has no body (ingest %s)", msg.Id, ingestId)
	}
	return msg.Body, nil
}

func (q *RedisQueue) requeueExpired(ctx *bmcontext.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	n, err := requeueScript.Run(q.db, []string{q.key(inflightKey), q.key(pendingKey)}, now).Int64()
	if err != nil {
		return errors.Wrap(err, "error requeueing expired messages")
	}
	if n > 0 {
		ctx.Log.Infof("Requeued %d messages whose visibility timeout expired", n)
	}
	return nil
}
