package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/systmms/secretref/internal/config"
)

// withProviderTimeout creates a context with timeout for provider operations
func withProviderTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// deadlineDetail describes why a pending reference was abandoned
func deadlineDetail(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return "resolution was cancelled before the secret was fetched"
	}
	return "resolution deadline elapsed before the secret was fetched"
}

// timeoutDetail reports a provider call that ran out of time together with
// a hint for the provider type
func timeoutDetail(cfg config.ProviderConfig, timeout time.Duration) string {
	return fmt.Sprintf("operation exceeded %v timeout. %s", timeout, getTimeoutSuggestion(cfg.Type, timeout))
}

// getTimeoutSuggestion provides helpful suggestions for timeout errors
func getTimeoutSuggestion(providerType string, timeout time.Duration) string {
	timeoutSec := int(timeout / time.Second)

	switch {
	case strings.HasPrefix(providerType, "aws."):
		if timeoutSec < 5 {
			return "AWS API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check AWS connectivity and credentials. Verify region is correct"

	case providerType == "gcp.secretmanager":
		if timeoutSec < 5 {
			return "Google Cloud API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check Google Cloud connectivity and authentication"

	case providerType == "azure.keyvault":
		if timeoutSec < 5 {
			return "Azure API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check Azure connectivity and authentication"

	case providerType == "vault":
		if timeoutSec < 5 {
			return "Vault API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check Vault connectivity and authentication. Verify VAULT_ADDR"

	case providerType == "akeyless":
		return "Check the Akeyless gateway_url and that the gateway is reachable"

	case providerType == "keychain":
		return "The keychain may be waiting for an unlock prompt. Unlock it and try again"
	}

	// Generic suggestions
	if timeoutSec < 10 {
		return "Provider operation timed out. Try increasing timeout_ms in your provider configuration"
	}
	return "Check network connectivity and provider authentication. Consider increasing timeout_ms if provider is consistently slow"
}
