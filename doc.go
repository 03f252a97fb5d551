// Package ircore implements the connection-protocol core of an
// extensible IRC chat client: dialing and authenticating one or more
// concurrent server connections, parsing the bidirectional wire
// protocol (RFC 1459/2812 plus the IRCv3 capability and tag
// extensions), maintaining per-server state (identity, channels, nick
// rosters, channel modes, capabilities), and exposing an event-driven
// stream of parsed messages plus an outbound command API.
//
// Rendering, slash-command parsing, configuration file formats,
// DCC/file-transfer, and charset/TLS library internals are treated as
// external collaborators; the core only calls the abstract Options,
// encode/decode, and tls.Config surfaces documented on Server and
// ServerConfig.
package ircore
