// Package metrics exposes Prometheus metrics for the notification pipeline.
//
// A Provider owns a private registry; Pipeline records ingestion, delivery,
// dead-letter and queue task outcomes; HTTPMiddleware instruments the chi
// router by route pattern.
//
//	p := metrics.NewProvider("notifyhub")
//	pipeline, err := metrics.NewPipeline(p)
//	worker, err := queue.NewWorker(storage, queue.WithTaskObserver(pipeline.ObserveTask))
//	r.Handle("/metrics", p.Handler())
package metrics
