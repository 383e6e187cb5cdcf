package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at link time: -ldflags "-X github.com/0xa1bed0/stagecache/internal/version.Version=v1.2.3".
var Version = "dev"

// Get describes the running binary.
func Get() string {
	v := Version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return fmt.Sprintf("stagecache %s (history schema %s, %s/%s)", v, HistorySchemaVersion, runtime.GOOS, runtime.GOARCH)
}
