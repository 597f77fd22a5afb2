package engine

import (
	"runtime/debug"
	"strings"
)

// ModuleVersion reports the version of the given dependency linked into the running binary.
func ModuleVersion(modulePath string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}

	for _, dep := range bi.Deps {
		if dep.Path != modulePath {
			continue
		}

		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return strings.Trim(dep.Version, "()")
	}

	return "devel"
}
