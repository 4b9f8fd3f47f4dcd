package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/credentials"
	"github.com/platinummonkey/joboost/pkg/generation"
	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

// CodeUpgradeRequired marks 403 responses caused by an exhausted credit pool.
const CodeUpgradeRequired = "upgrade_required"

// writeServiceError maps domain errors to HTTP responses. Anything it does not
// recognise is logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientCreditError
	switch {
	case errors.As(err, &insufficient):
		httputil.WriteDetailedError(w, http.StatusForbidden, CodeUpgradeRequired,
			insufficientMessage(insufficient),
			map[string]interface{}{
				"pool":      insufficient.Pool,
				"available": insufficient.Available,
				"needed":    insufficient.Requested,
			})

	case errors.Is(err, generation.ErrProfileRequired):
		httputil.WriteBadRequest(w, "Veuillez d'abord compléter votre profil maître")

	case errors.Is(err, applications.ErrInvalidStatus):
		httputil.WriteBadRequest(w, "Statut invalide")

	case errors.Is(err, applications.ErrApplicationNotFound):
		httputil.WriteNotFoundError(w, "Candidature non trouvée")

	case errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidReturnURL),
		errors.Is(err, applications.ErrInvalidApplication),
		errors.Is(err, generation.ErrInvalidKind),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, spontaneous.ErrNoCompanies),
		errors.Is(err, spontaneous.ErrInvalidQuery),
		errors.Is(err, spontaneous.ErrInvalidSelection):
		httputil.WriteBadRequest(w, err.Error())

	case errors.Is(err, billing.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrBalanceNotFound),
		errors.Is(err, applications.ErrProfileNotFound):
		httputil.WriteNotFoundError(w, "not found")

	case errors.Is(err, billing.ErrPaymentProvider),
		errors.Is(err, billing.ErrReconciliation),
		errors.Is(err, credentials.ErrCredentialFetch),
		errors.Is(err, generation.ErrGeneration):
		observability.FromContext(r.Context()).WithError(err).Warn("Upstream provider failed")
		httputil.WriteBadGateway(w, "upstream provider error")

	case errors.Is(err, generation.ErrNotConfigured),
		errors.Is(err, credentials.ErrNotConfigured):
		httputil.WriteServiceUnavailable(w, "service not configured")

	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}

func insufficientMessage(e *ledger.InsufficientCreditError) string {
	if e.Pool == ledger.PoolSpontaneous {
		return fmt.Sprintf("Crédits insuffisants. Vous avez %d crédits, il vous en faut %d.", e.Available, e.Requested)
	}
	return fmt.Sprintf("Crédits %s épuisés. Passez au plan Pro pour plus de générations.", e.Pool)
}
