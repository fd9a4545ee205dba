// Package config loads runtime configuration for the sessionkeeper CLI.
//
// Values come from built-in defaults, then an optional JSON file given with
// -c or -config, then command-line flags. Later sources win.
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "local_db_path": "/home/me/.config/sessionkeeper/session.db",
//	  "device_label": "work laptop",
//	  "refresh_timeout": "5s",
//	  "log_level": "info"
//	}
package config
