package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"

	"github.com/sweeney/irrigation-relay/internal/relay"
	"github.com/sweeney/irrigation-relay/internal/shadow"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"on"}, `{"state":{"desired":{"relay_state":1}}}`},
		{[]string{"off"}, `{"state":{"desired":{"relay_state":0}}}`},
		{[]string{"stop"}, `{"state":{"desired":{"relay_state":0}}}`},
		{[]string{"sprinkle"}, `{"state":{"desired":{"relay_on_timer":10000}}}`},
		{[]string{"water"}, `{"state":{"desired":{"relay_on_timer":1800000}}}`},
		{[]string{"timer", "90s"}, `{"state":{"desired":{"relay_on_timer":90000}}}`},
		{[]string{"timer", "0s"}, `{"state":{"desired":{"relay_on_timer":0}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			d, err := parseCommand(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			out, err := shadow.EncodeDesired(d)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("got %s, want %s", out, tt.want)
			}
		})
	}
}

func TestParseCommandRoundTripsThroughDecoder(t *testing.T) {
	d, err := parseCommand([]string{"on"})
	if err != nil {
		t.Fatal(err)
	}
	out, _ := shadow.EncodeDesired(d)
	back := shadow.DecodeDelta(out)
	if back.State == nil || *back.State != relay.StateOn {
		t.Errorf("device would not see ON in %s", out)
	}
}

func TestParseCommandErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"open"},
		{"on", "now"},
		{"timer"},
		{"timer", "soon"},
		{"timer", "-5s"},
		{"timer", "1000h"},
		{"timer", "1s", "2s"},
	}
	for _, args := range cases {
		if _, err := parseCommand(args); err == nil {
			t.Errorf("args %q: expected error", args)
		}
	}
}

func TestParseCommandUsage(t *testing.T) {
	if _, err := parseCommand([]string{"open"}); !errors.Is(err, errUsage) {
		t.Errorf("unknown verb should wrap errUsage, got %v", err)
	}
}

func TestRunRejectsBadCommandBeforeConnecting(t *testing.T) {
	err := run([]string{"-thing", "v1", "explode"}, &bytes.Buffer{})
	if !errors.Is(err, errUsage) {
		t.Fatalf("expected errUsage, got %v", err)
	}
}

func TestRunHelp(t *testing.T) {
	var stderr bytes.Buffer
	if err := run([]string{"-h"}, &stderr); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}
