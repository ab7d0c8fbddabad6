// Package provider defines the capability interface implemented by every
// secret store secretref can resolve references against.
//
// This package is the only thing the resolution engine knows about backing
// stores. Concrete integrations for GCP Secret Manager, AWS Secrets Manager,
// AWS SSM Parameter Store, Azure Key Vault, HashiCorp Vault, Akeyless and the
// OS keychain live in internal/providers.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                    CLI Commands                             │
//	│              (cmd/secretref/commands/)                      │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                Resolution Engine                            │
//	│         (internal/resolve/, internal/cache/)                │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                Provider Interface                           │
//	│                 (pkg/provider/)                ◄────────────┤
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│              Provider Implementations                       │
//	│              (internal/providers/)                          │
//	│                                                             │
//	│  ┌─────────────┐  ┌─────────────┐  ┌─────────────┐          │
//	│  │     GCP     │  │    AWS      │  │    Vault    │  ...     │
//	│  │  Provider   │  │  Providers  │  │  Provider   │          │
//	│  └─────────────┘  └─────────────┘  └─────────────┘          │
//	└─────────────────────────────────────────────────────────────┘
//
// # Closed Provider Set
//
// Providers are compiled in. The engine selects an implementation by the
// "type" string in the secrets configuration section through an explicit
// table in internal/providers; there is no plugin loading.
//
// # Operations
//
// A provider exposes four operations:
//   - Get fetches one secret value by name and optional version
//   - Put creates or updates a secret (setup and migration tooling only)
//   - List enumerates the secret names the caller can access
//   - TestConnection probes reachability and never fails hard
//
// # Error Handling
//
// Get must classify failures with the error types in this package:
//   - NotFoundError when the secret or version does not exist
//   - AuthError when the caller's credentials lack access
//   - UnavailableError for transport, network or throttling failures
//
// The engine treats any other error as Unavailable. NotFound and permission
// failures are never masked by a stale cached value.
//
// # Security Considerations
//
// Providers must:
//   - Never log secret values (use the logging.Secret wrapper)
//   - Never include a fetched value in an error message
//   - Honor the deadline carried by the context
//
// # Threading and Concurrency
//
// Provider implementations must be safe for concurrent use. The engine
// issues Get calls for distinct references in parallel.
//
// # Testing
//
// RunContractTests exercises the behaviour every implementation must share:
//
//	func TestMyProviderContract(t *testing.T) {
//	    provider.RunContractTests(t, provider.ContractTest{
//	        CreateProvider: func(t *testing.T) provider.Provider {
//	            return NewMyProvider("test", fakeClient)
//	        },
//	        SetupTestSecret: func(t *testing.T, p provider.Provider) (string, func()) {
//	            fakeClient.values["app/token"] = "s3cr3t"
//	            return "app/token", func() {}
//	        },
//	    })
//	}
package provider
