package normalize

import "encoding/json"

// hostNameFields is the fixed, priority-ordered list recovered from
// original_source/app/api/v1/endpoints/environments.py's
// _extract_host_identifiers: direct host-name fields first, then the
// affected-component object, then raw IP fields. Order is load-bearing —
// it determines which identifier wins when a payload carries more than one.
var hostNameFields = []string{
	"ComputerName", "computerName", "host", "device_name", "device",
	"hostname", "name", "testName",
}

var ipFields = []string{
	"ip", "device_ip", "deviceIp", "managementIpAddr", "dst_ip", "src_ip",
}

// ExtractHostIdentifiers pulls host/device identifiers out of a raw JSON
// payload: the first non-empty host-name field in the priority order above
// (later host-name fields are not read), then affectedComponent.name (or
// .id), then every non-empty IP field, de-duplicated but order-preserving.
// Returns nil when raw isn't a JSON object or carries none of the
// recognized fields.
func ExtractHostIdentifiers(raw string) []string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, f := range hostNameFields {
		if s := stringifyField(obj[f]); s != "" {
			add(s)
			break
		}
	}

	if comp, ok := obj["affectedComponent"].(map[string]any); ok {
		s := stringifyField(comp["name"])
		if s == "" {
			s = stringifyField(comp["id"])
		}
		if s != "" {
			add(s)
		}
	}

	for _, f := range ipFields {
		if s := stringifyField(obj[f]); s != "" {
			add(s)
		}
	}

	return out
}
