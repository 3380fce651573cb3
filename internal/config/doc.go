// Package config handles configuration loading for souk-gateway.
//
// # Configuration File
//
// DefaultPath resolves the file location:
//
//  1. Path from SOUK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/souk/gateway.yaml (~/.config when unset)
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	auth:
//	  jwt_secret: "${SOUK_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	database:
//	  path: "/var/lib/souk/gateway.db"
//
//	auth:
//	  jwt_secret: "${SOUK_JWT_SECRET}"   # at least 32 bytes
//
//	realtime:
//	  allowed_origins: ["shop.example.com"]
//	  handshake_timeout: "10s"
//	  ping_interval: "30s"
//	  events_per_second: 10
//	  event_burst: 20
//
//	conversation:
//	  write_timeout: "5s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "souk"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax. Omitted values take the Default*
// constants.
package config
