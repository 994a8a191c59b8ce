package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# TinyWebServer Configuration File
#
# Values can be overridden with environment variables using the
# TINYWEBSERVER_ prefix, e.g. TINYWEBSERVER_ADAPTERS_HTTP_PORT=9006.

`

// keyComments are attached above the matching key in generated files.
var keyComments = map[string]string{
	"logging":                             "Logging: level DEBUG|INFO|WARN|ERROR, format text|json, output stdout|stderr|<path>.\nqueue_size 0 writes synchronously.",
	"server":                              "Server-wide settings",
	"server.metrics":                      "Prometheus endpoint (/metrics, /healthz)",
	"document_root":                       "Directory static files are served from.\nsource local uses it as is; source s3 mirrors an s3 bucket prefix into it at startup\n(s3: region, bucket, key_prefix, endpoint, access_key_id, secret_access_key).",
	"credentials":                         "Credential store for /login and /register: memory or badger",
	"credentials.memory":                  "Seed users as username: password",
	"adapters":                            "Protocol adapters",
	"adapters.http.trigger_mode":          "0: level/level, 1: connections edge-triggered,\n2: listener edge-triggered, 3: both edge-triggered",
	"adapters.http.idle_timeout":          "Close connections idle this long (0 disables)",
	"adapters.http.linger":                "Graceful close of the listening socket (SO_LINGER 1s)",
	"adapters.http.workers":               "Worker pool size (0 selects NumCPU+1)",
	"adapters.http.write_chunk_threshold": "Level-triggered writes yield once this many bytes remain",
	"adapters.http.accept_rate":           "New connections per second (0 unlimited)",
}

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path written. Fails if the file exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with explanatory comments.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	annotate(&doc, "")

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return configHeader + buf.String(), nil
}

// annotate attaches keyComments to the keys of a mapping node, recursively.
func annotate(n *yaml.Node, prefix string) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if c, ok := keyComments[path]; ok {
			key.HeadComment = c
		}
		annotate(value, path)
	}
}
