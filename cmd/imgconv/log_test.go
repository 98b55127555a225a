package main

import (
	"os"
	"testing"

	gologging "github.com/op/go-logging"
)

func TestMain(m *testing.M) {
	gologging.SetLevel(gologging.WARNING, "")
	os.Exit(m.Run())
}
