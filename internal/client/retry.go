package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/rs/zerolog/log"
)

type RetryPolicy struct {
	// Attempts is the total number of tries; values below 1 mean one.
	Attempts int
	Backoff  time.Duration
}

// Retrying repeats failed client calls with a constant delay. Errors that
// cannot change between tries are returned at once.
type Retrying struct {
	client *Client
	policy RetryPolicy
}

func NewRetrying(client *Client, policy RetryPolicy) *Retrying {
	return &Retrying{client: client, policy: policy}
}

func (r *Retrying) Upload(ctx context.Context, filePath, resourceName string) (string, error) {
	return retry(ctx, r.policy, "upload", func() (string, error) {
		return r.client.Upload(ctx, filePath, resourceName)
	})
}

func (r *Retrying) Download(ctx context.Context, resourceName, destinationPath string) (string, error) {
	return retry(ctx, r.policy, "download", func() (string, error) {
		return r.client.Download(ctx, resourceName, destinationPath)
	})
}

func (r *Retrying) Stat(ctx context.Context, resourceName string) (*metadata.FileMetadata, error) {
	return retry(ctx, r.policy, "stat", func() (*metadata.FileMetadata, error) {
		return r.client.Stat(ctx, resourceName)
	})
}

func retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func() (T, error)) (T, error) {
	attempts := max(policy.Attempts, 1)
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Backoff), uint64(attempts-1)),
		ctx,
	)

	operation := func() (T, error) {
		v, err := fn()
		if err != nil && (cdnerr.IsPermanent(err) || ctx.Err() != nil) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Str("op", op).Dur("retryIn", next).Msg("[CLIENT] Retrying")
	}

	return backoff.RetryNotifyWithData[T](operation, b, notify)
}
