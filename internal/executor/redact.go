package executor

import (
	"regexp"
	"strings"
)

// secretPatterns match credential values in command output.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
	regexp.MustCompile(`\b[a-f0-9]{64,}\b`),
}

const redactPlaceholder = "[REDACTED]"

// envKeyValuePattern matches KEY=VALUE lines for sensitive variable names,
// as printed by env, set, export -p or declare -p.
var envKeyValuePattern = regexp.MustCompile(
	`(?im)^(?:declare -x |export )?` +
		`(WARDEN_\w*|\w*_API_KEY|\w*_SECRET\w*|\w*_TOKEN|AWS_SECRET_ACCESS_KEY)` +
		`[= ].*$`,
)

// ScanOutput redacts credential values from command output and returns
// the number of redactions.
func ScanOutput(output string) (string, int) {
	count := 0
	result := output
	for _, re := range secretPatterns {
		if matches := re.FindAllString(result, -1); len(matches) > 0 {
			count += len(matches)
			result = re.ReplaceAllString(result, redactPlaceholder)
		}
	}
	if matches := envKeyValuePattern.FindAllString(result, -1); len(matches) > 0 {
		count += len(matches)
		result = envKeyValuePattern.ReplaceAllString(result, redactPlaceholder)
	}
	for strings.Contains(result, redactPlaceholder+"\n"+redactPlaceholder) {
		result = strings.ReplaceAll(result, redactPlaceholder+"\n"+redactPlaceholder, redactPlaceholder)
	}
	return result, count
}

// sanitizeEnv drops variables that carry credentials so governed commands
// cannot read warden's own secrets.
func sanitizeEnv(env []string) []string {
	clean := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if sensitiveEnvName(name) {
			continue
		}
		clean = append(clean, kv)
	}
	return clean
}

func sensitiveEnvName(name string) bool {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "WARDEN_"):
		return true
	case strings.HasSuffix(upper, "_API_KEY"), upper == "API_KEY":
		return true
	case strings.Contains(upper, "SECRET"):
		return true
	case strings.HasSuffix(upper, "_TOKEN"):
		return true
	}
	return false
}
