// Package buildinfo provides build information for tidekv.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/tidekv/internal/infra/buildinfo.Version=v1.0.0"
//
// Without ldflags the commit and time fall back to the VCS stamp recorded
// by the go command. The values appear in INFO server, the admin status
// endpoint and the --version output of both binaries.
package buildinfo
