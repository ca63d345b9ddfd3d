package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keywatch_fetches_total",
			Help: "Product page fetches by outcome",
		},
		[]string{"product", "result"},
	)
	CurrentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keywatch_current_price",
			Help: "Cheapest known offer per tracked game",
		},
		[]string{"product", "currency"},
	)
	ConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keywatch_consecutive_failures",
			Help: "Length of the current failure streak per tracked game",
		},
		[]string{"product"},
	)
	CatalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keywatch_catalog_entries",
			Help: "Entries in the current catalog snapshot",
		},
	)
)

func Start(port string) {
	prometheus.MustRegister(FetchesTotal, CurrentPrice, ConsecutiveFailures, CatalogSize)
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(":"+port, nil)
}
