package config

import (
	"fmt"
	"os"
	"strings"
)

// Setup is what the first-run setup asks for.
type Setup struct {
	BaseURL          string
	Username         string
	Password         string
	DesiredTimeLocal string
}

const envTemplate = `WSP_BASE_URL=%s
WSP_USERNAME=%s
WSP_PASSWORD=%s
# Format: HH:MM:SS or HH:MM:SS.000000 (Local Time)
WSP_DESIRED_TIME_LOCAL=%s

# Delay (in seconds) between sending requests for DIFFERENT subjects
# Increase if you get 500 Errors. Default is 0.2
WSP_REQUEST_DELAY="0.2"

# Delay (in seconds) to wait before retrying the SAME subject
# if the server says "Registration not started". Default is 0.5
WSP_RETRY_DELAY="0.5"
`

// WriteEnvFile writes a .env file with the setup values. The file is private
// to the user since it holds the password.
func WriteEnvFile(path string, s Setup) error {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.DesiredTimeLocal == "" {
		s.DesiredTimeLocal = "10:00:00.000000"
	}
	content := fmt.Sprintf(envTemplate,
		quote(s.BaseURL), quote(s.Username), quote(s.Password), quote(s.DesiredTimeLocal))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
