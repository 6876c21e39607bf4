package process

import (
	"regexp"
	"strings"
)

// Mask replaces redacted fragments.
const Mask = "***"

// Flags whose value is always secret.
var sensitiveFlags = []string{"--proving-key", "--witness", "--key", "--secret", "--password", "--token"}

var (
	sensitiveFlagRe  = regexp.MustCompile(`(--(?:proving-key|witness|key|secret|password|token))(=|\s+)("[^"]*"|'[^']*'|\S+)`)
	assignmentRe     = regexp.MustCompile(`(?i)\b(password|passwd|token|key|secret|api_key|apikey)=([^\s&;,]+)`)
	bearerRe         = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)
	credentialPathRe = regexp.MustCompile(`(?i)[^\s="']*(?:\.pem|\.key|\.p12|\.pfx)\b|[^\s="']*id_(?:rsa|dsa|ecdsa|ed25519)[^\s"']*|[^\s="']*\.ssh/[^\s"']*|[^\s="']*\.aws/credentials`)
)

// Redact masks secret-looking fragments in s: values of sensitive flags,
// key=value assignments of credentials, bearer tokens and credential file
// paths.
func Redact(s string) string {
	s = sensitiveFlagRe.ReplaceAllString(s, "${1}${2}"+Mask)
	s = assignmentRe.ReplaceAllString(s, "${1}="+Mask)
	s = bearerRe.ReplaceAllString(s, "${1}"+Mask)
	return credentialPathRe.ReplaceAllString(s, Mask)
}

// RedactArgs returns a redacted copy of args. The argument following a
// sensitive flag is masked whole.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		if maskNext {
			out[i] = Mask
			maskNext = false
			continue
		}
		if isSensitiveFlag(arg) {
			out[i] = arg
			maskNext = true
			continue
		}
		out[i] = Redact(arg)
	}
	return out
}

// RedactCommand renders program and args as one redacted line for logs.
func RedactCommand(program string, args []string) string {
	parts := append([]string{program}, RedactArgs(args)...)
	return strings.Join(parts, " ")
}

func isSensitiveFlag(arg string) bool {
	for _, f := range sensitiveFlags {
		if arg == f {
			return true
		}
	}
	return false
}
