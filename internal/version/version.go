// ABOUTME: Product identification constants
// ABOUTME: Reported in server hello messages, mDNS records and the CLI
package version

// Version is overridden at build time with -ldflags "-X .../version.Version=..."
var Version = "0.1.0"

const (
	Product      = "Loopback"
	Manufacturer = "Resonate Protocol"

	// ServiceType is the mDNS service advertised by the daemon
	ServiceType = "_loopback._tcp"
)

// String returns the product and version
func String() string {
	return Product + " " + Version
}
