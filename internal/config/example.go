package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ExampleYAML is written by 'sitewatch init'.
const ExampleYAML = `# sitewatch configuration

log_level: info          # debug | info | warn | error
# log_file: sitewatch.log
http_timeout: 30s
max_body_bytes: 10485760
data_dir: monitor_data
state_backend: file      # file | sqlite
startup_sweep: true
# proxies:
#   - http://127.0.0.1:8080

email:
  enabled: false
  smtp_server: smtp.gmail.com
  smtp_port: 587
  smtp_username: your-email@gmail.com
  # Leave empty to use SITEWATCH_SMTP_PASSWORD or 'sitewatch credentials set'.
  smtp_password: ""
  sender: your-email@gmail.com
  recipients:
    - your-email@gmail.com
  use_tls: true
  use_ssl: false
  max_per_minute: 10

sites:
  - id: example-product
    name: Example Product Page
    url: https://example.com/product
    css_selector: .product-availability
    min_check_interval_minutes: 5
    max_check_interval_minutes: 10
    headers:
      User-Agent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
  - id: example-badge
    name: Example Badge
    url: https://example.com/item
    # Match the first element whose class list matches the pattern.
    css_selector: "regex:^badge( |$)"
    recipients: someone@example.com
`

// ErrConfigExists is returned by WriteExample when the target exists and force is false.
var ErrConfigExists = errors.New("configuration file already exists")

// WriteExample writes ExampleYAML to path.
func WriteExample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(ExampleYAML), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
