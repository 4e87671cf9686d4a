package mcpserver

import (
	"net/url"
	"os"
	"runtime"
	"sort"
	"strings"
)

// Environment variables inherited by stdio subprocesses. Everything else from
// the parent environment is dropped; config-supplied env is merged on top.
var (
	posixInheritedEnv = []string{"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER"}

	windowsInheritedEnv = []string{
		"APPDATA", "HOMEDRIVE", "HOMEPATH", "LOCALAPPDATA", "PATH",
		"PROCESSOR_ARCHITECTURE", "SYSTEMDRIVE", "SYSTEMROOT", "TEMP",
		"USERNAME", "USERPROFILE",
	}
)

func inheritedEnvKeys() []string {
	if runtime.GOOS == "windows" {
		return windowsInheritedEnv
	}
	return posixInheritedEnv
}

// SanitizedEnv builds the environment for a stdio subprocess: the platform
// allow-list from the parent environment, minus function-shaped values
// (exported shell functions begin with "()"), with extra merged on top.
// The result is sorted KEY=VALUE pairs.
func SanitizedEnv(extra map[string]string) []string {
	merged := make(map[string]string)

	for _, key := range inheritedEnvKeys() {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if strings.HasPrefix(value, "()") {
			continue
		}
		merged[key] = value
	}

	for k, v := range extra {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// AutodetectCwd returns the first positional argument that resolves to an
// existing directory, or "". Filesystem-style servers take their root
// directory as an argument; running them with that directory as cwd keeps
// relative paths inside it. Absence of a directory is not an error.
func AutodetectCwd(args []string) string {
	for _, arg := range args {
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			return arg
		}
	}
	return ""
}

// RewriteDockerLocalhost replaces localhost/127.0.0.1 hosts in rawURL with
// host.docker.internal. Used when metamcp runs in a container and the
// configured servers run on the docker host. Unparseable URLs pass through.
func RewriteDockerLocalhost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return rawURL
	}

	if port := u.Port(); port != "" {
		u.Host = "host.docker.internal:" + port
	} else {
		u.Host = "host.docker.internal"
	}
	return u.String()
}

// AuthorizationHeader returns the Authorization header value for an HTTP
// config. An OAuth access token takes precedence over a static bearer token.
// Returns "" when the config carries no credentials.
func AuthorizationHeader(cfg ServerConfig) string {
	if cfg.OAuthTokens != nil && cfg.OAuthTokens.AccessToken != "" {
		return "Bearer " + cfg.OAuthTokens.AccessToken
	}
	if cfg.BearerToken != "" {
		return "Bearer " + cfg.BearerToken
	}
	return ""
}
