// Package fakes provides test doubles for secretref provider interfaces.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior: scripted values and errors, latency, blocking and call
// counting.
//
// Usage:
//
//	fake := fakes.NewFakeProvider("gcp").
//	    WithSecret("db/password", "secret123").
//	    WithDelay(50 * time.Millisecond)
//	engine := resolve.New(secrets, resolve.WithProvider("gcp", fake))
//	// Resolve and then check fake.GetCount("db/password")...
package fakes
