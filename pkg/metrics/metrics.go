package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EngineRuns counts scheduled-task engine runs.
	EngineRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskhive",
		Name:      "engine_runs_total",
		Help:      "Number of scheduled-task engine runs",
	})

	// TasksPromoted counts scheduled tasks promoted to live tasks, per tenant.
	TasksPromoted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhive",
		Name:      "scheduled_tasks_promoted_total",
		Help:      "Scheduled tasks promoted to live tasks",
	}, []string{"tenant"})

	// TasksFailed counts scheduled tasks that failed promotion, per tenant.
	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhive",
		Name:      "scheduled_tasks_failed_total",
		Help:      "Scheduled tasks that failed promotion",
	}, []string{"tenant"})

	// TenantRunErrors counts per-tenant engine failures (partition unreachable etc.).
	TenantRunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskhive",
		Name:      "engine_tenant_errors_total",
		Help:      "Tenant batches that failed during an engine run",
	})

	// CrossTenantRejections counts authenticated requests rejected because the
	// identity's tenant did not match the resolved routing key.
	CrossTenantRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskhive",
		Name:      "cross_tenant_rejections_total",
		Help:      "Requests rejected for identity/tenant mismatch",
	})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
