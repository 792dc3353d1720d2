package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	clientNameKey   contextKey = "client_name"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

// SetClientName stores the name of the authenticated API key and reports it
// to the access log.
func SetClientName(ctx context.Context, name string) context.Context {
	noteClient(ctx, name)
	return context.WithValue(ctx, clientNameKey, name)
}

func GetClientName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(clientNameKey).(string)
	return name, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
