// Package normalize implements templating & normalization (spec component A):
// it turns a raw log line into a low-cardinality templated string suitable
// for embedding-based clustering, and a ParsedLog carrying the structured
// fields the rest of the pipeline needs.
package normalize

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// OS is the operating-system / source family a log line was routed from.
type OS string

const (
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
	OSNetwork OS = "network"
	OSUnknown OS = "unknown"
)

// ParsedLog is the derived, in-memory representation of one log line.
type ParsedLog struct {
	OS        OS
	Component string
	PID       string
	Content   string
	EnvID     string
	Templated string
}

var (
	isoTimestampRE = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?\b`)
	ipv4RE         = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	longNumRE      = regexp.MustCompile(`\b\d{4,}\b`)
	whitespaceRE   = regexp.MustCompile(`\s+`)

	// linuxSyslogRE matches "component[pid]: content" or "component: content".
	linuxSyslogRE = regexp.MustCompile(`^([\w.\-/]+)(?:\[(\d+)\])?:\s*(.*)$`)
)

const maxContentLen = 180

// SanitizeContent applies the fixed high-cardinality-token rewrites from
// spec.md §4.A: ISO-8601 timestamps, dotted-quad IPs, and ≥4-digit integers
// become placeholder tokens, whitespace collapses, and the result is
// truncated to 180 characters.
func SanitizeContent(content string) string {
	s := isoTimestampRE.ReplaceAllString(content, "<ts>")
	s = ipv4RE.ReplaceAllString(s, "<ip>")
	s = longNumRE.ReplaceAllString(s, "<num>")
	s = whitespaceRE.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxContentLen {
		s = s[:maxContentLen]
	}
	return s
}

// RenderTemplate builds the stable, low-cardinality string used for
// embedding. Same inputs always produce the same output.
func RenderTemplate(component string, pid string, content string) string {
	component = strings.TrimSpace(component)
	if component == "" {
		component = "unknown"
	}
	sanitized := SanitizeContent(content)
	if pid != "" {
		return component + "[" + pid + "]: " + sanitized
	}
	return component + ": " + sanitized
}

// sourceRoutes routes opaque source strings to an OS, per
// spec.md §4.D and original_source/app/streams/issues_aggregator.py's
// _os_from_source. Order matters: checked top to bottom.
var sourceRoutes = []struct {
	match func(s string) bool
	os    OS
}{
	{func(s string) bool { return strings.HasPrefix(s, "scom:") || strings.HasPrefix(s, "squaredup:") }, OSWindows},
	{func(s string) bool { return strings.HasPrefix(s, "catalyst:") || strings.HasPrefix(s, "thousandeyes:") }, OSNetwork},
	{func(s string) bool { return strings.Contains(s, "linux.log") }, OSLinux},
	{func(s string) bool { return strings.Contains(s, "mac.log") }, OSMacOS},
	{func(s string) bool { return strings.Contains(s, "windows") }, OSWindows},
}

// OSFromSource applies the fixed prefix/substring routing table to an
// opaque producer source string (e.g. "scom:host-01", "linux.log").
func OSFromSource(source string) OS {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return OSUnknown
	}
	for _, route := range sourceRoutes {
		if route.match(s) {
			return route.os
		}
	}
	return OSUnknown
}

func isIntegrationSource(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(s, "scom:") || strings.HasPrefix(s, "squaredup:") ||
		strings.HasPrefix(s, "catalyst:") || strings.HasPrefix(s, "thousandeyes:")
}

// stableKeys is the fixed, low-cardinality key subset projected out of
// generic integration JSON payloads, per spec.md §4.A.
var stableKeys = []string{
	"type", "status", "Status", "severity", "Severity",
	"metric", "Metric", "test", "test_name", "TestName",
	"name", "Name", "service", "Service", "component", "Component",
	"ComputerName", "message", "Message", "error", "Error",
	"summary", "Summary",
}

// highCardinalityKeys are pruned before the deterministic JSON fallback dump.
var highCardinalityKeys = map[string]bool{
	"TimeGenerated": true, "time": true, "ts": true, "timestamp": true,
	"ip": true, "IP": true, "Id": true, "id": true, "uuid": true,
	"request_id": true, "ray_id": true,
}

// NormalizeJSONPayload projects a JSON integration payload onto a stable
// low-cardinality string, returning ok=false when the line isn't a JSON
// object or the source isn't a recognized integration source.
func NormalizeJSONPayload(source, line string) (templated string, parsed ParsedLog, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return "", ParsedLog{}, false
	}
	if !isIntegrationSource(source) {
		return "", ParsedLog{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return "", ParsedLog{}, false
	}

	osName := OSFromSource(source)
	envID := firstStringField(obj, "EnvironmentId", "env_id", "environment_id")
	host := firstStringField(obj, "ComputerName", "Host", "host", "component", "Component")

	var parts []string
	s := strings.ToLower(strings.TrimSpace(source))
	switch {
	case strings.HasPrefix(s, "scom:"):
		channel := firstStringField(obj, "Channel")
		level := firstStringField(obj, "LevelDisplayName", "level")
		msg := firstStringField(obj, "Message", "message")
		for _, p := range []string{"scom", channel, level, host, msg} {
			if p != "" {
				parts = append(parts, p)
			}
		}
	default:
		for _, k := range stableKeys {
			v, present := obj[k]
			if !present {
				continue
			}
			sv := stringifyField(v)
			if sv == "" || sv == "None" {
				continue
			}
			parts = append(parts, k+"="+sv)
		}
	}

	if len(parts) == 0 {
		pruned := make(map[string]any, len(obj))
		for k, v := range obj {
			if highCardinalityKeys[k] {
				continue
			}
			pruned[k] = v
		}
		parts = []string{dumpSortedJSON(pruned)}
	}

	content := SanitizeContent(strings.Join(parts, " "))
	component := host
	if component == "" {
		if idx := strings.Index(s, ":"); idx >= 0 {
			component = s[:idx]
		} else {
			component = "unknown"
		}
	}

	parsed = ParsedLog{
		OS:        osName,
		Component: component,
		Content:   content,
		EnvID:     envID,
	}
	templated = RenderTemplate(component, "", content)
	parsed.Templated = templated
	return templated, parsed, true
}

func firstStringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s := stringifyField(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringifyField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func dumpSortedJSON(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		b, _ := json.Marshal(m[k])
		ordered = append(ordered, `"`+k+`":`+string(b))
	}
	return "{" + strings.Join(ordered, ",") + "}"
}

// Normalize is the single entry point used by the issues aggregator: it
// prefers the JSON-integration projection, then falls back to the
// OS-specific line parser.
func Normalize(source, line string) (templated string, parsed ParsedLog) {
	if t, p, ok := NormalizeJSONPayload(source, line); ok {
		return t, p
	}
	osName := OSFromSource(source)
	return parseAndTemplate(osName, line)
}

func parseAndTemplate(osName OS, line string) (string, ParsedLog) {
	var component, pid, content string
	switch osName {
	case OSLinux:
		component, pid, content = parseSyslogLine(line)
	case OSMacOS:
		component, pid, content = parseSyslogLine(line)
	default:
		// Windows and network sources reach this system pre-parsed or as
		// free text; fall back to a single "unknown" component so the
		// issue-key grouping and templating machinery stay well-defined.
		component, pid, content = "unknown", "", line
	}
	templated := RenderTemplate(component, pid, content)
	return templated, ParsedLog{
		OS:        osName,
		Component: component,
		PID:       pid,
		Content:   SanitizeContent(content),
		Templated: templated,
	}
}

// parseSyslogLine extracts component/pid/content from a syslog-style line:
// "component[pid]: content" or "component: content". Falls back to treating
// the whole line as unstructured content from an "unknown" component.
func parseSyslogLine(line string) (component, pid, content string) {
	m := linuxSyslogRE.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "unknown", "", line
	}
	return m[1], m[2], m[3]
}
