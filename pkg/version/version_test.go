package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	if !strings.Contains(info, "decoycall version") {
		t.Error("version info should contain 'decoycall version'")
	}
	if !strings.Contains(info, "dev") {
		t.Error("version info should contain default version 'dev'")
	}
	if !strings.Contains(info, runtime.Version()) {
		t.Errorf("version info should contain Go version %s", runtime.Version())
	}
}
