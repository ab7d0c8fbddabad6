package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/secretref/internal/config"
	"github.com/systmms/secretref/internal/providers"
)

func NewProvidersCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List available providers",
		Long: `Display information about available secret providers.

Shows both built-in provider types and the provider identifiers configured
in the secrets section.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := providers.NewRegistry()
			out := cmd.OutOrStdout()

			_, _ = fmt.Fprintln(out, "Built-in Provider Types:")
			_, _ = fmt.Fprintln(out, "=======================")

			supportedTypes := registry.GetSupportedTypes()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "TYPE\tDESCRIPTION\n")
			_, _ = fmt.Fprintf(w, "----\t-----------\n")
			for _, providerType := range supportedTypes {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", providerType, getProviderDescription(providerType))
			}
			_ = w.Flush()

			// Show configured providers if config is available
			if err := loadConfig(cfg, nil); err == nil && cfg.Document != nil {
				_, _ = fmt.Fprintln(out, "\nConfigured Providers:")
				_, _ = fmt.Fprintln(out, "====================")

				secrets := cfg.Document.Secrets
				ids := secrets.ProviderIDs()
				if len(ids) == 0 {
					_, _ = fmt.Fprintln(out, "No providers configured")
				} else {
					w2 := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					_, _ = fmt.Fprintf(w2, "NAME\tTYPE\tTTL\tSTATUS\n")
					_, _ = fmt.Fprintf(w2, "----\t----\t---\t------\n")
					for _, id := range ids {
						providerCfg := secrets.Providers[id]
						status := "configured"
						if !registry.IsSupported(providerCfg.Type) {
							status = "unsupported"
						}
						if id == secrets.DefaultProvider {
							status += " (default)"
						}
						_, _ = fmt.Fprintf(w2, "%s\t%s\t%v\t%s\n", id, providerCfg.Type, providerCfg.TTL(), status)
					}
					_ = w2.Flush()
				}
			}

			if verbose {
				_, _ = fmt.Fprintln(out, "\nProvider Details:")
				_, _ = fmt.Fprintln(out, "================")
				for _, providerType := range supportedTypes {
					_, _ = fmt.Fprintf(out, "\n%s:\n", providerType)
					for _, detail := range getProviderDetails(providerType) {
						_, _ = fmt.Fprintf(out, "  • %s\n", detail)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show detailed provider information")

	return cmd
}

// getProviderDescription returns a description for a provider type
func getProviderDescription(providerType string) string {
	descriptions := map[string]string{
		"memory":             "Values held in the configuration, for development and tests",
		"env":                "Process environment variables (read-only)",
		"aws.secretsmanager": "AWS Secrets Manager via SDK",
		"aws.ssm":            "AWS Systems Manager Parameter Store",
		"gcp.secretmanager":  "Google Cloud Secret Manager",
		"azure.keyvault":     "Azure Key Vault",
		"vault":              "HashiCorp Vault (KV v2)",
		"keychain":           "OS native keychain (macOS Keychain, Linux Secret Service)",
		"akeyless":           "Akeyless enterprise zero-knowledge secret management",
	}

	if desc, exists := descriptions[providerType]; exists {
		return desc
	}
	return "No description available"
}

// getProviderDetails returns detailed information for a provider type
func getProviderDetails(providerType string) []string {
	details := map[string][]string{
		"memory": {
			"Reads secrets from the provider's 'values' map",
			"Versions as a list: the last entry is latest, '#1' the first",
			"No external dependencies required",
		},
		"env": {
			"Maps names to variables: 'db/password' reads DB_PASSWORD",
			"Optional 'prefix' setting prepended to every variable",
			"Put is not supported",
		},
		"aws.secretsmanager": {
			"Uses AWS SDK v2 for direct API access",
			"Requires AWS credentials (CLI, env vars, IAM roles) or credentials_file",
			"Versions are staging labels: ${aws:db#AWSPREVIOUS}",
			"Optional 'region' and 'endpoint' (LocalStack) settings",
		},
		"aws.ssm": {
			"AWS Systems Manager Parameter Store",
			"Supports standard and SecureString parameters",
			"Automatic KMS decryption for SecureString",
			"Versions are parameter versions or labels: ${ssm:/app/db#3}",
		},
		"gcp.secretmanager": {
			"Google Cloud Secret Manager",
			"Requires 'project_id'",
			"Service account (credentials_file) and ADC authentication",
			"Versions are version numbers or aliases: ${gcp:db#5}",
		},
		"azure.keyvault": {
			"Azure Key Vault secrets",
			"Requires 'vault_url'",
			"Service principal from environment, CLI login, or certificate credentials_file",
			"Versions are Key Vault version ids",
		},
		"vault": {
			"HashiCorp Vault KV v2 engine",
			"Auth methods: token, userpass, ldap, approle, kubernetes",
			"Token from 'token', credentials_file, or VAULT_TOKEN",
			"Reads a single 'field' (default 'value') from each secret",
			"Versions are KV v2 version numbers",
		},
		"keychain": {
			"OS native credential storage",
			"macOS: Keychain Services",
			"Linux: Secret Service D-Bus API (gnome-keyring, KWallet)",
			"Key format: 'service/account', or 'account' in the configured service",
			"List only covers the configured 'items'",
		},
		"akeyless": {
			"Enterprise zero-knowledge secret management",
			"Auth methods: api_key, aws_iam, azure_ad, gcp",
			"Session token cached between calls",
			"Key format: '/path/to/secret', versions as '#N'",
			"Self-hosted or cloud-hosted gateway",
		},
	}

	if detail, exists := details[providerType]; exists {
		return detail
	}
	return []string{"No details available"}
}
