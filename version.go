package riveograf

import "runtime/debug"

// ModulePath is the import path of this module.
const ModulePath = "github.com/wippyai/rive-ograf"

// Version overrides the converter version reported by ConverterVersion.
// Set it at build time with:
//
//	go build -ldflags "-X github.com/wippyai/rive-ograf.Version=x.y.z"
var Version = ""

const develVersion = "0.0.0-dev"

// ConverterVersion returns the version of this module: Version when set,
// otherwise the version recorded in the binary's build info. Builds from a
// working tree report 0.0.0-dev.
func ConverterVersion() string {
	if Version != "" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return develVersion
	}
	return moduleVersion(info)
}

func moduleVersion(info *debug.BuildInfo) string {
	v := ""
	if info.Main.Path == ModulePath {
		v = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == ModulePath {
			v = dep.Version
			if dep.Replace != nil && dep.Replace.Version != "" {
				v = dep.Replace.Version
			}
		}
	}
	if v == "" || v == "(devel)" {
		return develVersion
	}
	return v
}
