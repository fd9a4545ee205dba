// Package client talks to the sessionkeeper server on behalf of the CLI.
//
// GRPCClient keeps the current token pair in memory and attaches the access
// token to every call. When the server answers "token expired" the call
// waits for a refresh shared by all concurrent callers (see package
// refresh) and is retried once. A rejected refresh token drops the pair and
// surfaces ErrSessionExpired.
//
// InitDatabase opens the local SQLite file the CLI keeps its session in.
package client
