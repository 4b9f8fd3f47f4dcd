// Package credentials caches OAuth2 client-credentials access tokens for
// outbound API integrations.
//
// A Cache is created once per process and injected where tokens are needed:
//
//	cache := credentials.NewCache(credentials.WithMetrics(metrics))
//	cache.Register("francetravail", credentials.NewClientCredentials(cfg))
//	client := spontaneous.NewLaBonneBoiteClient(cache.Credential("francetravail"), ...)
//
// Tokens are served until fetched_at + expires_in - 60s. When a token is
// missing or stale, exactly one refresh runs per credential name and every
// concurrent caller receives its result.
package credentials
