package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if !strings.HasPrefix(GetVersion(), GetBaseVersion()+".") {
		t.Fatalf("base version %s does not match version %s", GetBaseVersion(), GetVersion())
	}
}
