package opener

import (
	"os"
	"testing"

	"github.com/op/go-logging"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.WARNING, "")
	os.Exit(m.Run())
}
