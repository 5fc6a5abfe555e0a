package version

// Version is the current version of the GridCall CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/zeidlos/gridcall/internal/version.Version=v1.0.0'"

var Version = "0.1.0"
