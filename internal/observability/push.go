package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name used by batch runs.
const PushJob = "delivery_etl"

// Push sends everything in g to the Pushgateway at url, replacing the
// previous push for this job.
func Push(ctx context.Context, url string, g prometheus.Gatherer) error {
	if err := push.New(url, PushJob).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
