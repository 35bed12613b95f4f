package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrInvalidMasterKey       = errors.New("master key is not valid base64")
	ErrEmptyResourceToken     = errors.New("resource token is empty")
	ErrTokenExpired           = errors.New("resource token expired")
	ErrMalformedAuthorization = errors.New("malformed authorization header")
)

// RequestInfo is what a request signature covers.
type RequestInfo struct {
	Verb         string
	ResourceType string
	ResourceLink string
	// Date is the x-ms-date header value.
	Date string
}

// Authorizer produces the value of the authorization header.
type Authorizer interface {
	Authorize(ctx context.Context, info RequestInfo) (string, error)
}

// Invalidator is implemented by authorizers that cache credentials which the
// service may reject before they expire.
type Invalidator interface {
	Invalidate(info RequestInfo)
}

// FormatDate formats t the way the x-ms-date header expects.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC1123)
}

// MasterKeyAuthorizer signs requests with the account master key.
type MasterKeyAuthorizer struct {
	key []byte
}

// NewMasterKeyAuthorizer decodes a base64 master key.
func NewMasterKeyAuthorizer(masterKey string) (*MasterKeyAuthorizer, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMasterKey, err)
	}

	return &MasterKeyAuthorizer{key: key}, nil
}

// Signature returns the base64 HMAC-SHA256 of the canonical request string.
// The resource link keeps its case; every other part is lower-cased.
func (a *MasterKeyAuthorizer) Signature(info RequestInfo) string {
	payload := strings.ToLower(info.Verb) + "\n" +
		strings.ToLower(info.ResourceType) + "\n" +
		info.ResourceLink + "\n" +
		strings.ToLower(info.Date) + "\n\n"

	mac := hmac.New(sha256.New, a.key)
	_, _ = mac.Write([]byte(payload))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Authorize implements Authorizer.
func (a *MasterKeyAuthorizer) Authorize(_ context.Context, info RequestInfo) (string, error) {
	return formatAuthorization(constants.AuthTypeMaster, a.Signature(info)), nil
}

// Verify reports whether header carries a valid master signature for info.
func (a *MasterKeyAuthorizer) Verify(header string, info RequestInfo) bool {
	authType, signature, err := ParseAuthorization(header)
	if err != nil || authType != constants.AuthTypeMaster {
		return false
	}

	return hmac.Equal([]byte(signature), []byte(a.Signature(info)))
}

// ResourceTokenAuthorizer sends a static resource token.
type ResourceTokenAuthorizer struct {
	token string
}

// NewResourceTokenAuthorizer wraps token.
func NewResourceTokenAuthorizer(token string) (*ResourceTokenAuthorizer, error) {
	if token == "" {
		return nil, ErrEmptyResourceToken
	}

	return &ResourceTokenAuthorizer{token: token}, nil
}

// Authorize implements Authorizer.
func (a *ResourceTokenAuthorizer) Authorize(_ context.Context, _ RequestInfo) (string, error) {
	return url.QueryEscape(a.token), nil
}

// ProviderAuthorizer asks a TokenCache for a token per resource.
type ProviderAuthorizer struct {
	cache *TokenCache
}

// NewProviderAuthorizer creates an authorizer backed by source.
func NewProviderAuthorizer(source TokenSource) *ProviderAuthorizer {
	return &ProviderAuthorizer{cache: NewTokenCache(source)}
}

// Authorize implements Authorizer.
func (a *ProviderAuthorizer) Authorize(ctx context.Context, info RequestInfo) (string, error) {
	token, err := a.cache.GetToken(ctx, info.Verb, info.ResourceType, info.ResourceLink)
	if err != nil {
		return "", err
	}

	return url.QueryEscape(token), nil
}

// Invalidate drops the cached token for the resource in info.
func (a *ProviderAuthorizer) Invalidate(info RequestInfo) {
	a.cache.Invalidate(info.ResourceType, info.ResourceLink)
}

func formatAuthorization(authType, signature string) string {
	return url.QueryEscape(fmt.Sprintf("type=%s&ver=%s&sig=%s", authType, constants.AuthTokenVersion, signature))
}

// ParseAuthorization decodes an authorization header into its type and signature.
func ParseAuthorization(header string) (string, string, error) {
	decoded, err := url.QueryUnescape(header)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrMalformedAuthorization, err)
	}

	var authType, signature string

	for _, part := range strings.Split(decoded, "&") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		switch key {
		case "type":
			authType = value
		case "sig":
			signature = value
		}
	}

	if authType == "" || signature == "" {
		return "", "", ErrMalformedAuthorization
	}

	return authType, signature, nil
}

// ParseResourcePath splits a request path into the resource type and the
// resource link that a signature covers.
//
//	/dbs                  -> ("dbs", "")
//	/dbs/db               -> ("dbs", "dbs/db")
//	/dbs/db/colls         -> ("colls", "dbs/db")
//	/dbs/db/colls/c/docs  -> ("docs", "dbs/db/colls/c")
//	/                     -> ("", "")
func ParseResourcePath(path string) (string, string) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", ""
	}

	segments := strings.Split(trimmed, "/")
	if len(segments)%2 == 1 {
		return segments[len(segments)-1], strings.Join(segments[:len(segments)-1], "/")
	}

	return segments[len(segments)-2], trimmed
}
