package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	ReconcilePasses      prometheus.Counter
	MembersVerified      prometheus.Counter
	RolesGranted         prometheus.Counter
	RolesRevoked         prometheus.Counter
	MembersKicked        prometheus.Counter
	RegistrationsDropped prometheus.Counter
	PersistenceFailures  prometheus.Counter
	ClanAPIErrors        *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ReconcilePasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_reconcile_passes_total",
			Help: "Completed periodic verification passes over the ledger",
		}),
		MembersVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_members_verified_total",
			Help: "Individual member reconciliations attempted",
		}),
		RolesGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_roles_granted_total",
			Help: "Managed guild roles granted",
		}),
		RolesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_roles_revoked_total",
			Help: "Managed guild roles revoked",
		}),
		MembersKicked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_members_kicked_total",
			Help: "Guild members removed after leaving the clan",
		}),
		RegistrationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_registrations_dropped_total",
			Help: "Ledger entries deleted by reconciliation or pruning",
		}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clanbridge_persistence_failures_total",
			Help: "Failed ledger or settings write-backs",
		}),
		ClanAPIErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clanbridge_clan_api_errors_total",
			Help: "Clan API call failures by error kind",
		}, []string{"kind"}),
	}
}
