// Package sbi holds the constants and status codes shared between the
// firmware core and platform support code.
package sbi

const (
	// HartMaskMaxBits is the maximum number of harts the firmware can track.
	HartMaskMaxBits = 128

	// DefaultHartStackSize is the per-hart stack size used when a platform
	// does not ask for a different one.
	DefaultHartStackSize = 8192
)

const (
	VersionMajor = 1
	VersionMinor = 0
)

// Feature bits advertised by a platform descriptor.
const (
	PlatformHasTimerValue uint64 = 1 << iota
	PlatformHasHartHotplug
	PlatformHasMFaultsDelegation
	PlatformHasHartSecondaryBoot
)

// PlatformDefaultFeatures is the feature set of a platform that does not
// override it.
const PlatformDefaultFeatures = PlatformHasMFaultsDelegation

// Version packs a major and minor number the way the firmware core expects
// them, major in the upper 16 bits.
func Version(major, minor uint32) uint32 {
	return major<<16 | minor&0xffff
}

// FirmwareVersion is the packed version of this firmware.
var FirmwareVersion = Version(VersionMajor, VersionMinor)
