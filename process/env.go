package process

import (
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// Environment variables that adjust the policy.
const (
	EnvAllowVar = "ZISK_DEV_ENV_ALLOW"
	EnvDenyVar  = "ZISK_DEV_ENV_DENY"
)

var baseEnvNames = []string{
	"PATH", "HOME", "USER", "LOGNAME", "SHELL", "TERM", "LANG",
	"TMPDIR", "TMP", "TEMP", "TZ",
	"SSL_CERT_FILE", "SSL_CERT_DIR",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "ALL_PROXY",
	"CARGO_HOME", "RUSTUP_HOME", "RUSTUP_TOOLCHAIN",
	"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH",
	"SYSTEMROOT", "COMSPEC", "PATHEXT", "WINDIR", "USERPROFILE", "APPDATA", "LOCALAPPDATA",
}

// Names whose case varies in practice (http_proxy vs HTTP_PROXY).
var caseInsensitiveEnv = map[string]struct{}{
	"HTTP_PROXY": {}, "HTTPS_PROXY": {}, "NO_PROXY": {}, "ALL_PROXY": {},
}

var envNamePattern = regexp.MustCompile(`^(ZISK|ZISK_DEV|OMPI|PMIX|I_MPI|MPI|RUST)_[A-Z0-9_]+$`)

var deniedSubstrings = []string{"TOKEN", "SECRET", "PASSWORD", "PRIVATE_KEY", "CREDENTIAL"}

const deniedPrefix = "ZISK_DEV_SECRET_"

// EnvPolicyConfig adjusts the base allow-list.
type EnvPolicyConfig struct {
	// Allow adds names. Names listed here bypass the secret-looking
	// substring heuristics but not Deny.
	Allow []string
	// Deny removes names, overriding everything else.
	Deny []string
}

// EnvPolicy decides which environment variables reach child processes.
// It is immutable after construction.
type EnvPolicy struct {
	allow    map[string]struct{}
	explicit map[string]struct{}
	deny     map[string]struct{}
}

// NewEnvPolicy builds a policy from the base set plus cfg.
func NewEnvPolicy(cfg EnvPolicyConfig) *EnvPolicy {
	p := &EnvPolicy{
		allow:    make(map[string]struct{}, len(baseEnvNames)),
		explicit: make(map[string]struct{}, len(cfg.Allow)),
		deny:     make(map[string]struct{}, len(cfg.Deny)),
	}
	for _, n := range baseEnvNames {
		p.allow[n] = struct{}{}
	}
	for _, n := range cfg.Allow {
		if n = strings.TrimSpace(n); n != "" {
			p.explicit[n] = struct{}{}
		}
	}
	for _, n := range cfg.Deny {
		if n = strings.TrimSpace(n); n != "" {
			p.deny[n] = struct{}{}
		}
	}
	return p
}

// EnvPolicyFromEnv builds a policy using ZISK_DEV_ENV_ALLOW and
// ZISK_DEV_ENV_DENY (comma-separated names) read through lookup.
func EnvPolicyFromEnv(lookup func(string) (string, bool)) *EnvPolicy {
	var cfg EnvPolicyConfig
	if v, ok := lookup(EnvAllowVar); ok {
		cfg.Allow = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvDenyVar); ok {
		cfg.Deny = strings.Split(v, ",")
	}
	return NewEnvPolicy(cfg)
}

// Allowed reports whether name may be forwarded from the inherited
// environment.
func (p *EnvPolicy) Allowed(name string) bool {
	if name == "" || p.denied(name) {
		return false
	}
	if _, ok := p.explicit[name]; ok {
		return true
	}
	if secretLooking(name) {
		return false
	}
	return p.base(name)
}

// permitsOverride reports whether a caller-supplied variable may be set.
// Overrides skip the allow-list but not the deny rules.
func (p *EnvPolicy) permitsOverride(name string) bool {
	if name == "" || strings.ContainsAny(name, "=\x00") || p.denied(name) {
		return false
	}
	if _, ok := p.explicit[name]; ok {
		return true
	}
	return !secretLooking(name)
}

func (p *EnvPolicy) denied(name string) bool {
	_, ok := p.deny[name]
	return ok
}

func (p *EnvPolicy) base(name string) bool {
	if _, ok := p.allow[name]; ok {
		return true
	}
	upper := strings.ToUpper(name)
	if _, ok := caseInsensitiveEnv[upper]; ok {
		return true
	}
	if runtime.GOOS == "windows" {
		if _, ok := p.allow[upper]; ok {
			return true
		}
	}
	if name == "LC_ALL" || strings.HasPrefix(name, "LC_") {
		return true
	}
	return envNamePattern.MatchString(name)
}

func secretLooking(name string) bool {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, deniedPrefix) {
		return true
	}
	for _, s := range deniedSubstrings {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

// Filter reduces environ (KEY=VALUE entries) to allowed variables and
// appends overrides that pass the deny rules. Control characters are
// stripped from values; separators such as ':' and ';' are kept. When a
// name appears more than once, the last entry wins.
func (p *EnvPolicy) Filter(environ []string, overrides map[string]string) []string {
	out := make([]string, 0, len(environ)+len(overrides))
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !p.Allowed(name) {
			continue
		}
		out = append(out, name+"="+stripControl(value))
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !p.permitsOverride(name) {
			continue
		}
		out = append(out, name+"="+stripControl(overrides[name]))
	}
	return deduplicateEnv(out)
}

// deduplicateEnv keeps the last occurrence of each env var key.
// This ensures caller overrides win over inherited duplicates.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
