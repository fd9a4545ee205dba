// Package common contains shared constants and sentinel errors used across
// sessionkeeper components.
package common

// AuthorizationHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on outbound requests.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the access token in the authorization header.
const BearerPrefix = "Bearer "

// CorrelationIDHeaderName tags a single refresh call across client and server logs.
const CorrelationIDHeaderName = "x-correlation-id"
