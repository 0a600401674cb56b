// Package assets implements the Asset Context Provider: a
// conditional, cached, circuit-breaker-guarded view onto the
// infrastructure inventory held by an external asset-service.
package assets

import (
	"regexp"
	"strings"
)

// Asset is one inventory record as returned by the asset-service.
type Asset struct {
	Hostname    string            `json:"hostname"`
	IPAddress   string            `json:"ip_address"`
	Environment string            `json:"environment"`
	OSFamily    string            `json:"os_family"`
	Services    []string          `json:"services"`
	Tags        map[string]string `json:"tags"`
}

var infraNouns = []string{
	"host", "server", "node", "vm", "instance", "machine",
	"asset", "inventory", "environment",
	"production", "staging", "development", "prod", "stage", "dev",
	"linux", "windows", "ubuntu", "rhel", "centos", "debian",
	"nginx", "postgres", "postgresql", "mysql", "redis", "kafka",
}

var ipLikePattern = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)

// ShouldInject is the deterministic heuristic deciding whether a user
// query warrants prepending the asset-context block to the Stage AB
// prompt: true iff it names an infrastructure noun, an environment name,
// an OS/service family, or contains an IP-like token.
func ShouldInject(query string) bool {
	lower := strings.ToLower(query)
	if ipLikePattern.MatchString(query) {
		return true
	}
	for _, noun := range infraNouns {
		if strings.Contains(lower, noun) {
			return true
		}
	}
	return false
}
