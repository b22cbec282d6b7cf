package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.uber.org/zap"
)

var (
	NodeExecutions = stats.Int64("contentflow/node_executions", "Number of node execution attempts", stats.UnitDimensionless)
	NodeLatencyMs  = stats.Float64("contentflow/node_latency_ms", "Node execution latency", stats.UnitMilliseconds)

	KeyNodeType = tag.MustNewKey("node_type")
	KeyStatus   = tag.MustNewKey("status")
)

var (
	NodeExecutionsView = &view.View{
		Name:        "node_executions",
		Measure:     NodeExecutions,
		Description: "Node execution attempts by type and outcome",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyNodeType, KeyStatus},
	}
	NodeLatencyView = &view.View{
		Name:        "node_latency_ms",
		Measure:     NodeLatencyMs,
		Description: "Node execution latency distribution",
		Aggregation: view.Distribution(5, 25, 100, 250, 1000, 2500, 10000, 30000, 120000),
		TagKeys:     []tag.Key{KeyNodeType},
	}
	Views = []*view.View{NodeExecutionsView, NodeLatencyView}
)

var registerOnce sync.Once
var registerErr error

// Register installs the views once per process.
func Register() error {
	registerOnce.Do(func() {
		registerErr = view.Register(Views...)
	})
	return registerErr
}

func RecordNode(ctx context.Context, nodeType string, status string, elapsed time.Duration) {
	tagged, err := tag.New(ctx, tag.Upsert(KeyNodeType, nodeType), tag.Upsert(KeyStatus, status))
	if err != nil {
		logger.Debug("error tagging metric", zap.Error(err))
		return
	}
	stats.Record(tagged, NodeExecutions.M(1), NodeLatencyMs.M(float64(elapsed)/float64(time.Millisecond)))
}
