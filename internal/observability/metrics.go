package observability

// Instrument keys. Label sets are fixed at registration (see prometrics.Standard).
const (
	// use_case, outcome
	MUsecaseRequests MetricKey = "usecase_requests_total"
	// use_case
	MUsecaseDuration MetricKey = "usecase_duration_seconds"

	// method, route, status
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"

	// peer, endpoint, outcome (duration drops outcome)
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	// source, result
	MReconcileSignals MetricKey = "payment_reconcile_signals_total"
	// reason
	MStockCompensations MetricKey = "inventory_compensations_total"
)
