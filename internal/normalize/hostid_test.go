package normalize

import (
	"reflect"
	"testing"
)

func TestExtractHostIdentifiersPriorityOrder(t *testing.T) {
	raw := `{"ComputerName":"host-a","host":"host-b","ip":"10.0.0.9"}`
	got := ExtractHostIdentifiers(raw)
	want := []string{"host-a", "10.0.0.9"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractHostIdentifiers() = %v, want %v", got, want)
	}
}

func TestExtractHostIdentifiersAffectedComponent(t *testing.T) {
	raw := `{"affectedComponent":{"name":"switch-3","id":"sw-003"},"dst_ip":"10.0.0.1"}`
	got := ExtractHostIdentifiers(raw)
	want := []string{"switch-3", "10.0.0.1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractHostIdentifiers() = %v, want %v", got, want)
	}
}

func TestExtractHostIdentifiersAffectedComponentFallsBackToID(t *testing.T) {
	raw := `{"affectedComponent":{"id":"sw-003"},"dst_ip":"10.0.0.1"}`
	got := ExtractHostIdentifiers(raw)
	want := []string{"sw-003", "10.0.0.1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractHostIdentifiers() = %v, want %v", got, want)
	}
}

func TestExtractHostIdentifiersNonJSON(t *testing.T) {
	if got := ExtractHostIdentifiers("not json"); got != nil {
		t.Errorf("expected nil for non-JSON input, got %v", got)
	}
}

func TestExtractHostIdentifiersDeduplicates(t *testing.T) {
	raw := `{"ComputerName":"host-a","host":"host-a","device_name":"host-a"}`
	got := ExtractHostIdentifiers(raw)
	want := []string{"host-a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractHostIdentifiers() = %v, want %v", got, want)
	}
}
