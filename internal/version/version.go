package version

// Version is the current version of the videochat binaries.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/st4rkjatt/videoChatSimple/internal/version.Version=v1.0.0'"
var Version = "dev"
