// Package emberauth is a multi-tenant credential-issuance engine. It
// authenticates end users on behalf of registered tenant apps through
// one-time passcodes and magic links, and issues short-lived ES256 identity
// tokens plus optional long-lived refresh tokens, each cryptographically
// scoped to the requesting tenant.
//
// # Architecture boundaries
//
// emberauth is the public surface: [Engine], [Builder], [Config], the
// store contracts ([AppStore], [RefreshTokenStore]), and value types. The
// engine consumes an abstract document store for tenant apps and refresh
// records (a Postgres implementation lives in store/postgres), a Redis
// client as the expiring key-value store for one-time secrets, a
// [notify.Sender] for outbound mail, and a [keyvault.Vault] for signing-key
// custody. HTTP routing is a thin layer over Engine methods and lives in
// internal/httpapi.
//
// # Concurrency
//
// Engine methods are safe for concurrent use after [Builder.Build].
// Correctness under interleaving leans on the stores: quota consumption is
// an atomic decrement with a floor at zero, the low-quota notification
// debounce is a compare-and-swap on the stored timestamp, and one-time
// secrets become single-use by collapsing their TTL to a one-second
// tombstone after the first successful verification. Two in-flight
// verifications of the same still-valid secret can both succeed inside
// that window; the trade-off favors low latency and is accepted.
package emberauth
