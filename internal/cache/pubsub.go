package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
)

// PublishRun sends a run to the live channel and to a per-status channel
// (runs:status:success, runs:status:failed).
func (r *RedisCache) PublishRun(ctx context.Context, run *models.RunEvent) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	channels := []string{
		constants.PubSubChannelRuns,
		fmt.Sprintf("runs:status:%s", run.Status),
	}

	pipe := r.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	return nil
}

// SubscribeRuns streams runs from the live channel until ctx is done.
func (r *RedisCache) SubscribeRuns(ctx context.Context) (<-chan *models.RunEvent, error) {
	return r.Subscribe(ctx, constants.PubSubChannelRuns)
}

// Subscribe streams runs published on channel. The returned channel closes
// when ctx is done.
func (r *RedisCache) Subscribe(ctx context.Context, channel string) (<-chan *models.RunEvent, error) {
	pubsub := r.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so publish-after-subscribe is not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	r.logger.WithField("channel", channel).Info("subscribed to channel")

	out := make(chan *models.RunEvent, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var run models.RunEvent
				if err := json.Unmarshal([]byte(msg.Payload), &run); err != nil {
					r.logger.WithError(err).Warn("error unmarshaling run")
					continue
				}
				select {
				case out <- &run:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
