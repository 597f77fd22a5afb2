package probe

import (
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/sre-norns/wyrd/pkg/manifest"
	"golang.org/x/mod/semver"
)

const (
	LabelOS   = "probe.os"
	LabelArch = "probe.arch"

	LabelBuildVersion = "probe.version"

	LabelEngine             = "probe.engine"
	LabelEngineVersion      = "probe.engine.version"
	LabelEngineVersionMajor = LabelEngineVersion + ".major"
)

func RuntimeLabels() manifest.Labels {
	version := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		version = strings.Trim(bi.Main.Version, "()")
	}
	if version == "" {
		version = "devel"
	}

	return manifest.Labels{
		LabelArch:         runtime.GOARCH,
		LabelOS:           runtime.GOOS,
		LabelBuildVersion: version,
	}
}

// EngineLabels describes the browser engine a run used. Major version is only set for valid sem-versions.
func EngineLabels(name, version string) manifest.Labels {
	labels := manifest.Labels{
		LabelEngine: name,
	}
	if version == "" {
		return labels
	}

	labels[LabelEngineVersion] = strings.TrimPrefix(version, "v")
	if semver.IsValid(version) {
		labels[LabelEngineVersionMajor] = strings.TrimPrefix(semver.Major(version), "v")
	}

	return labels
}
