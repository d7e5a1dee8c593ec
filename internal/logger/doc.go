// Package logger wraps zap to offer:
//   - a global sugared logger with a console encoder that stamps every line,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The server dispatcher, the client and the admin API all take a context and
// extract the logger from it, so connection-scoped fields such as conn_id and
// identity follow every line written on behalf of a client.
package logger
