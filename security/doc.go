// Package security provides the TLS configuration of the tile server.
//
//	cfg := security.TLSConfig{
//	    CertFile: "/path/to/server.pem",
//	    KeyFile:  "/path/to/server-key.pem",
//	}
//
//	tlsConfig, err := cfg.Build()
package security
