// Package version records the build version stamped at link time.
package version

// Value is the release version reported by `recast version` and the API.
// Release builds override it with:
//
//	go build -ldflags "-X recast/internal/version.Value=v1.2.3"
var Value = "dev"
