package assets

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/itchyny/gojq"
)

// compactSchema is a fixed-size description of what the inventory
// contains, without enumerating any live record. It is always safe to
// inject regardless of inventory size.
const compactSchema = `Infrastructure inventory schema: each asset has hostname, ip_address, environment (production|staging|development), os_family, services[], tags{}. Query the asset-service for live data; do not assume any host exists without confirming it.`

// CompactContext returns the fixed-size schema-only block.
func CompactContext() string {
	return compactSchema
}

// ComprehensiveContext returns the schema plus a live summary of up to
// maxAssets inventory records, one line per asset.
func ComprehensiveContext(assets []Asset, maxAssets int) string {
	var b strings.Builder
	b.WriteString(compactSchema)
	b.WriteString("\n\nKnown assets:\n")

	limit := len(assets)
	if maxAssets > 0 && maxAssets < limit {
		limit = maxAssets
	}
	for i := 0; i < limit; i++ {
		a := assets[i]
		b.WriteString(fmt.Sprintf("- %s (%s) env=%s os=%s services=%s\n",
			a.Hostname, a.IPAddress, a.Environment, a.OSFamily, strings.Join(a.Services, ",")))
	}
	if limit < len(assets) {
		b.WriteString(fmt.Sprintf("... and %d more\n", len(assets)-limit))
	}
	return b.String()
}

// TargetContext is the result of resolving a hostname/IP against the
// inventory.
type TargetContext struct {
	IsAsset bool
	Data    *Asset
	Summary string
}

var matchByHostnameOrIP = mustParseQuery(`first(.[] | select(.hostname == $target or .ip_address == $target)) // null`)

func mustParseQuery(src string) *gojq.Query {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	return q
}

var targetLookupCode = func() *gojq.Code {
	code, err := gojq.Compile(matchByHostnameOrIP, gojq.WithVariables([]string{"$target"}))
	if err != nil {
		panic(err)
	}
	return code
}()

// ContextForTarget resolves target (a hostname or IP literal) against
// assets using a jq-style filter rather than a hand-rolled linear scan,
// so the match expression stays declarative as asset shape grows.
func ContextForTarget(assets []Asset, target string) (TargetContext, error) {
	raw := make([]interface{}, 0, len(assets))
	for _, a := range assets {
		raw = append(raw, map[string]interface{}{
			"hostname":    a.Hostname,
			"ip_address":  a.IPAddress,
			"environment": a.Environment,
			"os_family":   a.OSFamily,
			"services":    a.Services,
			"tags":        a.Tags,
		})
	}

	iter := targetLookupCode.RunWithContext(context.Background(), raw, target)
	v, ok := iter.Next()
	if ok {
		if err, isErr := v.(error); isErr {
			return TargetContext{}, fmt.Errorf("target lookup failed: %w", err)
		}
		if match, isMap := v.(map[string]interface{}); isMap {
			asset := assetFromMap(match)
			return TargetContext{
				IsAsset: true,
				Data:    &asset,
				Summary: fmt.Sprintf("%s is a known %s asset in %s", asset.Hostname, asset.OSFamily, asset.Environment),
			}, nil
		}
	}

	summary := fmt.Sprintf("%s is an ad-hoc target not in inventory", target)
	if net.ParseIP(target) != nil {
		summary = fmt.Sprintf("%s (IP) is an ad-hoc target not in inventory", target)
	}
	return TargetContext{IsAsset: false, Summary: summary}, nil
}

func assetFromMap(m map[string]interface{}) Asset {
	a := Asset{
		Hostname:    stringField(m, "hostname"),
		IPAddress:   stringField(m, "ip_address"),
		Environment: stringField(m, "environment"),
		OSFamily:    stringField(m, "os_family"),
	}
	if services, ok := m["services"].([]interface{}); ok {
		for _, s := range services {
			if str, ok := s.(string); ok {
				a.Services = append(a.Services, str)
			}
		}
	}
	if tags, ok := m["tags"].(map[string]interface{}); ok {
		a.Tags = make(map[string]string, len(tags))
		for k, v := range tags {
			if str, ok := v.(string); ok {
				a.Tags[k] = str
			}
		}
	}
	return a
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
