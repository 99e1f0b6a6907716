package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the ledger.
// All keys and channels are automatically namespaced with the instance name.
// The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new ledger client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: appraise instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace used for all keys.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveEvaluation records an evaluation under its fingerprint, indexes it for the
// developer and publishes it on the evaluation events channel.
// Saving a second evaluation with the same fingerprint replaces the first.
func (c *Client) SaveEvaluation(ctx context.Context, e *Evaluation) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid evaluation: %w", err)
	}

	hash, err := EvaluationToHash(e)
	if err != nil {
		return fmt.Errorf("failed to serialize evaluation: %w", err)
	}

	key := EvaluationKey(c.instanceName, e.Fingerprint)
	indexKey := DeveloperEvaluationsKey(c.instanceName, e.Developer)

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, hash)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(e.TimestampMs), Member: e.Fingerprint})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write evaluation to Redis: %w", err)
	}

	evaluationJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation for event: %w", err)
	}

	channel := EvaluationEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, evaluationJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish evaluation event: %w", err)
	}

	return nil
}

// GetEvaluation retrieves the evaluation recorded for a fingerprint.
// Returns (nil, redis.Nil) if none exists. Use IsNotFound() to check.
func (c *Client) GetEvaluation(ctx context.Context, fingerprint string) (*Evaluation, error) {
	key := EvaluationKey(c.instanceName, fingerprint)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	evaluation, err := HashToEvaluation(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize evaluation: %w", err)
	}

	return evaluation, nil
}

// EvaluationExists checks if an evaluation exists without fetching it.
func (c *Client) EvaluationExists(ctx context.Context, fingerprint string) (bool, error) {
	key := EvaluationKey(c.instanceName, fingerprint)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check evaluation existence: %w", err)
	}
	return exists > 0, nil
}

// ScanFingerprints returns the sorted fingerprints of recorded evaluations that
// start with prefix. The prefix is used in a SCAN MATCH pattern, so callers pass
// hex characters only.
func (c *Client) ScanFingerprints(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := EvaluationKey(c.instanceName, "")
	pattern := keyPrefix + prefix + "*"

	seen := make(map[string]bool)
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluations: %w", err)
		}
		for _, key := range keys {
			seen[strings.TrimPrefix(key, keyPrefix)] = true
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	fingerprints := make([]string, 0, len(seen))
	for fp := range seen {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)
	return fingerprints, nil
}

// ListDeveloperEvaluations returns a developer's evaluations, newest first.
// A limit <= 0 returns all of them. Index entries whose evaluation has vanished
// are skipped.
func (c *Client) ListDeveloperEvaluations(ctx context.Context, developer string, limit int64) ([]*Evaluation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	fingerprints, err := c.rdb.ZRevRange(ctx, DeveloperEvaluationsKey(c.instanceName, developer), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read developer index: %w", err)
	}

	evaluations := make([]*Evaluation, 0, len(fingerprints))
	for _, fp := range fingerprints {
		evaluation, err := c.GetEvaluation(ctx, fp)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, evaluation)
	}

	return evaluations, nil
}

// DeveloperStats aggregates every evaluation recorded for a developer.
// A developer without evaluations yields zero counts, not an error.
func (c *Client) DeveloperStats(ctx context.Context, developer string) (*DeveloperStats, error) {
	evaluations, err := c.ListDeveloperEvaluations(ctx, developer, 0)
	if err != nil {
		return nil, err
	}

	stats := &DeveloperStats{
		Developer: developer,
		SkillTags: make(map[string]int),
	}

	for _, e := range evaluations {
		stats.Evaluations++
		stats.TotalEstimatedReward += e.EstimatedReward()
		for _, tag := range e.SkillTags() {
			stats.SkillTags[tag]++
		}
		if e.TimestampMs > stats.LastEvaluatedMs {
			stats.LastEvaluatedMs = e.TimestampMs
		}
	}

	if stats.Evaluations > 0 {
		stats.AverageEstimatedReward = stats.TotalEstimatedReward / float64(stats.Evaluations)
	}

	return stats, nil
}

// SetProjectPopularity records the popularity score of a project.
// Scores must lie in [0,100].
func (c *Client) SetProjectPopularity(ctx context.Context, project string, score float64) error {
	if project == "" {
		return fmt.Errorf("project cannot be empty")
	}
	if math.IsNaN(score) || score < 0 || score > 100 {
		return fmt.Errorf("invalid popularity score: %v (must be in [0,100])", score)
	}

	key := ProjectPopularityKey(c.instanceName)
	if err := c.rdb.HSet(ctx, key, project, strconv.FormatFloat(score, 'f', -1, 64)).Err(); err != nil {
		return fmt.Errorf("failed to write project popularity: %w", err)
	}
	return nil
}

// GetProjectPopularity returns the recorded popularity score of a project.
// Returns (0, redis.Nil) if the project has no score.
func (c *Client) GetProjectPopularity(ctx context.Context, project string) (float64, error) {
	raw, err := c.rdb.HGet(ctx, ProjectPopularityKey(c.instanceName), project).Result()
	if err != nil {
		if IsNotFound(err) {
			return 0, redis.Nil
		}
		return 0, fmt.Errorf("failed to read project popularity: %w", err)
	}

	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid popularity value for project %q: %w", project, err)
	}
	return score, nil
}

// Subscription represents an active Pub/Sub subscription to evaluation events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Evaluation
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of evaluation events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Evaluation {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvaluationEvents subscribes to evaluations saved for this instance.
// Delivery is at-most-once: events published while nobody listens are lost.
func (c *Client) SubscribeEvaluationEvents(ctx context.Context) (*Subscription, error) {
	channel := EvaluationEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no event published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *Evaluation, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var evaluation Evaluation
				if err := json.Unmarshal([]byte(msg.Payload), &evaluation); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal evaluation event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &evaluation:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
