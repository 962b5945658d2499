package observability

import (
	"context"

	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterPoolGauges reports the snapshots returned by stats as observable
// gauges on meter, labelled by pool name and state. Unregister the
// returned registration to stop.
func RegisterPoolGauges(meter metric.Meter, stats func() []pool.Stats) (metric.Registration, error) {
	bytes, err := meter.Int64ObservableGauge("imagepool.pool.bytes",
		metric.WithDescription("Bytes held by a pool, by state"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to create bytes gauge")
	}
	values, err := meter.Int64ObservableGauge("imagepool.pool.values",
		metric.WithDescription("Values held by a pool, by state"))
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to create values gauge")
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range stats() {
			used := metric.WithAttributes(attribute.String("pool", s.Name), attribute.String("state", "used"))
			free := metric.WithAttributes(attribute.String("pool", s.Name), attribute.String("state", "free"))
			o.ObserveInt64(bytes, int64(s.UsedBytes), used)
			o.ObserveInt64(bytes, int64(s.FreeBytes), free)
			o.ObserveInt64(values, int64(s.UsedCount), used)
			o.ObserveInt64(values, int64(s.FreeCount), free)
		}
		return nil
	}, bytes, values)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to register pool gauges")
	}
	return reg, nil
}
