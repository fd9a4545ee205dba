// Package cli is the interactive sessionkeeper client.
//
// App wires the config, the local session database and the gRPC client,
// resumes a stored session and then runs a small REPL: register, login,
// whoami, sessions, refresh, logout, logout-all, ping and exit. Token
// refreshes happen inside the client; the REPL only sees their outcome.
package cli
