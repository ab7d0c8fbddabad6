package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message     string
	Suggestion  string
	Details     string
	Err         error
}

func (e UserError) Error() string {
	var parts []string
	
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	
	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}
	
	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}
	
	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message
	
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	
	return msg
}

// ProviderError enhances provider-specific errors with context.
// providerType is the implementation type (e.g. "gcp.secretmanager") and
// selects the suggestion; provider is the configured identifier.
func ProviderError(provider, providerType, operation string, err error) error {
	// Check for common provider errors and add helpful context
	suggestion := getProviderSuggestion(providerType, err)

	return UserError{
		Message:    fmt.Sprintf("%s provider error during %s", provider, operation),
		Suggestion: suggestion,
		Err:        err,
	}
}

// getProviderSuggestion returns helpful suggestions based on provider and error
func getProviderSuggestion(providerType string, err error) string {
	errStr := err.Error()
	
	switch providerType {
	case "gcp.secretmanager":
		if strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "permission denied") {
			return "Grant roles/secretmanager.secretAccessor to the service account in credentials_file"
		}
		if strings.Contains(errStr, "could not find default credentials") {
			return "Set credentials_file or run 'gcloud auth application-default login'"
		}
		if strings.Contains(errStr, "project") {
			return "Set project_id in the provider block or export GOOGLE_CLOUD_PROJECT"
		}

	case "aws.secretsmanager", "aws.ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: set credentials_file/profile or AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue or ssm:GetParameter"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the secret name and region"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "azure.keyvault":
		if strings.Contains(errStr, "Forbidden") || strings.Contains(errStr, "403") {
			return "Assign the 'Key Vault Secrets User' role to the configured identity"
		}
		if strings.Contains(errStr, "vault_url") {
			return "Set vault_url to https://<vault-name>.vault.azure.net/"
		}

	case "vault":
		if strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "403") {
			return "Check the Vault policy attached to your token"
		}
		if strings.Contains(errStr, "missing client token") {
			return "Set token_file or export VAULT_TOKEN"
		}

	case "keychain":
		if strings.Contains(errStr, "not supported") {
			return "The keychain provider requires macOS Keychain or a Secret Service daemon on Linux"
		}

	case "akeyless":
		if strings.Contains(errStr, "access_id") || strings.Contains(errStr, "access key") {
			return "Set access_id and credentials_file holding the Akeyless access key"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and provider configuration"
	}
	
	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}
	
	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}
	
	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(*ResolutionError); ok {
		return err
	}
	if _, ok := err.(SyntaxErrors); ok {
		return err
	}
	
	// Simplify common technical errors
	errStr := rootErr.Error()
	
	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}
	
	if strings.Contains(errStr, "json:") {
		return ConfigError{
			Message:    "Invalid JSON format",
			Suggestion: "Validate your JSON at https://jsonlint.com/",
		}
	}
	
	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}
	
	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}
	
	// Return original error if we can't simplify it
	return err
}