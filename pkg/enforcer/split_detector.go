package enforcer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSplitDetector backs split_detection with a short-TTL per-agent
// counter in Redis (spec §4.4: "Requires a short-TTL per-agent counter at
// the edge"; §5: "Per-agent split-detection counters: sharded by agent_id
// hash... expire after the largest configured window plus a 1-minute
// grace"). Redis's own key TTL does the sharded-expiry work for us.
type RedisSplitDetector struct {
	client *redis.Client
	ctx    context.Context
	grace  time.Duration
}

// NewRedisSplitDetector wraps a redis client. Every Redis call runs under
// its own 500ms timeout, so a degraded connection cannot block the hot
// path for longer than that per call.
func NewRedisSplitDetector(client *redis.Client) *RedisSplitDetector {
	return &RedisSplitDetector{
		client: client,
		ctx:    context.Background(),
		grace:  time.Minute,
	}
}

// CountSimilarRequests records the current request and returns how many
// similar requests from agentID preceded it within windowMinutes. "Similar"
// is keyed on agent_id, action type and the action context's "resource"
// entry (not a separate resource field) — the coarsest grouping
// that still catches a split-into-many-small-requests pattern. The count
// excludes the request being evaluated itself, so "fewer than max_requests
// similar requests in the window" (spec §4.4) compares prior history, not
// history-plus-the-request-it-gates.
func (d *RedisSplitDetector) CountSimilarRequests(agentID string, action Action, windowMinutes int) (int, error) {
	key := splitKey(agentID, action)
	window := time.Duration(windowMinutes) * time.Minute

	ctx, cancel := context.WithTimeout(d.ctx, 500*time.Millisecond)
	defer cancel()

	pipe := d.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+d.grace)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("enforcer: split-detection counter: %w", err)
	}

	return int(incr.Val()) - 1, nil
}

func splitKey(agentID string, action Action) string {
	h := sha256.Sum256([]byte(action.Type + "|" + fmt.Sprint(action.Context["resource"])))
	return fmt.Sprintf("agentgovern:split:%s:%s", agentID, hex.EncodeToString(h[:8]))
}
