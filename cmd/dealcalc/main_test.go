package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
)

func TestRun_Tax(t *testing.T) {
	in := strings.NewReader(`{"address": {"postal_code": "90012"}, "selling_price": "30000.00", "trade_in_value": "5000.00"}`)
	var out bytes.Buffer

	if err := run("tax", "-", "", in, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var res map[string]any
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if res["total_tax"] != "2375.00" {
		t.Errorf("expected total_tax \"2375.00\", got %v", res["total_tax"])
	}
}

func TestRun_Rules(t *testing.T) {
	var out bytes.Buffer
	if err := run("rules", "-", "", strings.NewReader(""), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"supported_states"`) {
		t.Errorf("expected rules info, got %s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		body     string
		wantCode int
	}{
		{"malformed", "tax", `{`, 2},
		{"zero term", "finance", `{"address": {"postal_code": "90012"}, "selling_price": "100.00"}`, 2},
		{"unknown zip", "tax", `{"address": {"postal_code": "00001"}, "selling_price": "100.00"}`, 3},
		{"unknown kind", "trade", `{}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.kind, "-", "", strings.NewReader(tt.body), &bytes.Buffer{})
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if got := exitCode(err); got != tt.wantCode {
				t.Errorf("expected exit code %d, got %d (%v)", tt.wantCode, got, err)
			}
		})
	}
}

func TestExitCode_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), calcerr.ErrUnsupportedState)
	if got := exitCode(err); got != 3 {
		t.Errorf("expected exit code 3, got %d", got)
	}
}
