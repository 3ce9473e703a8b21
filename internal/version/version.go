package version

// Version is overridden at build time with -ldflags "-X github.com/galamiram/spotiwidget/internal/version.Version=..."
var Version = "dev"
