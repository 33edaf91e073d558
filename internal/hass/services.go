package hass

import (
	"context"

	"github.com/qilowatt/qwbridge/internal/logging"
)

// LogServiceCaller is the standalone server's stand-in when no UI host is
// attached: every service call is logged and accepted. Embedders replace
// it with their own ServiceCaller.
type LogServiceCaller struct{}

func (LogServiceCaller) CallService(ctx context.Context, domain, service, entityID string, value any) error {
	logging.Info("service call", "domain", domain, "service", service, "entity", entityID, "value", value)
	return nil
}
