package config

import (
	"fmt"
	"os"
)

func Template() string {
	return appTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(appTemplate), 0o600)
}

const appTemplate = `# authpipe configuration. Command line flags override these values.

# Payload bytes per signed frame. The final frame of a stream may be shorter.
chunk_size = 1024

# Persistent signing key, created with "authpipe keygen". A fresh key is
# generated for every run when empty.
key_file = ""

# Allow list of trusted peer keys for "authpipe receive":
#   [[peer]]
#   name = "ci"
#   public_key = "P..."
trusted_keys_file = ""

# Serve /metrics and /health on this address while a stream runs.
metrics_addr = ""

[limits]
max_chunk_size = 65535
max_public_key_bytes = 1024
max_signature_bytes = 512
# Input buffered while a peer key is being verified.
max_pending_bytes = 1048576

[log]
level = "info"
file = ""
timestamp = true
no_color = false
`
