// Package version reports the build version of gwlink binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gwlink/gwlink-go/pkg/wire"
)

// Dev is reported when no module version is embedded in the binary.
const Dev = "dev"

// Version may be set at link time with
// -ldflags "-X github.com/gwlink/gwlink-go/pkg/version.Version=v1.2.3".
var Version string

var (
	once     sync.Once
	resolved string
	module   string
)

func resolve() {
	module = "github.com/gwlink/gwlink-go"
	resolved = Version
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if resolved == "" {
			resolved = Dev
		}
		return
	}
	if info.Main.Path != "" {
		module = info.Main.Path
	}
	if resolved == "" {
		resolved = fromBuildInfo(info)
	}
}

// fromBuildInfo prefers a tagged module version, then a short VCS revision.
func fromBuildInfo(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return Dev
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return Dev + "+" + rev
}

// Current returns the build version.
func Current() string {
	once.Do(resolve)
	return resolved
}

// Module returns the main module path of the running binary.
func Module() string {
	once.Do(resolve)
	return module
}

// String describes the build and the protocol revision it speaks.
func String() string {
	return fmt.Sprintf("%s %s (protocol %d)", Module(), Current(), wire.ProtocolVersion)
}
