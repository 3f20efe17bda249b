package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Validations by resulting state: valid/invalid/used/expired
	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_access_validations_total",
			Help: "Total number of access token validations",
		},
		[]string{"state"},
	)

	GrantsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_access_grants_issued_total",
			Help: "Total number of access links issued",
		},
		[]string{"target_page", "permanent"},
	)

	GrantsRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vip_access_grants_revoked_total",
			Help: "Total number of access links revoked",
		},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_admin_login_attempts_total",
			Help: "Total number of admin login attempts",
		},
		[]string{"status"},
	)

	SessionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_access_session_rejections_total",
			Help: "Gated requests rejected by the session gate",
		},
		[]string{"reason"},
	)

	UploadedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vip_uploaded_files_total",
			Help: "Total number of images stored",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
