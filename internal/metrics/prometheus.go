package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are created at package init so services can increment them
// unconditionally; InitCustomMetrics only registers them with a registry.
var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_tokens_issued_total",
		Help: "Total number of tokens issued.",
	})
	TokensValidatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_tokens_validated_total",
		Help: "Total number of successful token validations.",
	})
	TokensRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_tokens_rejected_total",
		Help: "Total number of token validations rejected (expired, deleted or revoked).",
	})
	GrantsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_grants_created_total",
		Help: "Total number of role grants created.",
	})
	GrantsDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_grants_deleted_total",
		Help: "Total number of role grants deleted.",
	})
	RevocationEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_revocation_events_total",
		Help: "Total number of revocation events emitted.",
	})
	TrustUsesConsumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_trust_uses_consumed_total",
		Help: "Total number of trust uses consumed.",
	})
	AuthenticationSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_authentications_success_total",
		Help: "Total number of successful authentications.",
	})
	AuthenticationFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accord_authentications_failure_total",
		Help: "Total number of failed authentications.",
	})
)

// InitCustomMetrics registers the core's metrics with the given registry.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		TokensIssuedTotal, TokensValidatedTotal, TokensRejectedTotal,
		GrantsCreatedTotal, GrantsDeletedTotal, RevocationEventsTotal,
		TrustUsesConsumedTotal, AuthenticationSuccessTotal, AuthenticationFailureTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}
