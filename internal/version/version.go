// ABOUTME: Version and product identification
// ABOUTME: Reported in server hellos, logs and the -version flag
package version

const (
	Version      = "0.1.0"
	Product      = "Aliasing Lab"
	Manufacturer = "Resonate Protocol"
)

// String returns the product and version for display
func String() string {
	return Product + " " + Version
}
