// Package metric exports disk buffer and box traffic as Prometheus metrics.
//
// The observer is registered against a caller supplied prometheus.Registerer
// so several stores can be monitored from one process:
//
//	reg := prometheus.NewRegistry()
//	obs, err := metric.NewPrometheusObserver(reg, "mdstore")
//	if err != nil {
//		return err
//	}
//	st, err := mdstore.Open(ctx, cfg, mdstore.WithMetricsObserver(obs))
package metric
