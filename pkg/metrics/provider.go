package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider owns a dedicated Prometheus registry and its scrape handler.
type Provider struct {
	namespace string
	registry  *prometheus.Registry
}

// NewProvider creates a registry with Go runtime and process collectors.
// namespace prefixes every metric created through the provider.
func NewProvider(namespace string) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Provider{namespace: namespace, registry: reg}
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          p.registry,
	})
}

func (p *Provider) Registry() *prometheus.Registry { return p.registry }

func (p *Provider) Namespace() string { return p.namespace }
