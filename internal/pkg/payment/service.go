package payment

import (
	"time"

	"github.com/samber/do/v2"
)

// NewCollaboratorService uses the payment gateway when one is configured and
// falls back to the in-process Ledger otherwise.
func NewCollaboratorService(i do.Injector) (Collaborator, error) {
	gatewayURL := do.MustInvokeNamed[string](i, "payment-gateway-url")
	timeout := do.MustInvokeNamed[time.Duration](i, "payment-timeout")

	if gatewayURL == "" {
		return NewLedger(), nil
	}

	return NewGatewayClient(gatewayURL, timeout), nil
}
