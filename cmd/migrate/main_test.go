package main

import (
	"testing"

	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

func TestRunRequiresDatabaseURL(t *testing.T) {
	if err := run("", nil, logging.New("error")); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}
