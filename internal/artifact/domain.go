// Package artifact defines the artifact data model and processing state
// machine shared by the OTA and IPSW pipelines.
package artifact

// Domain identifies which artifact source schema (and key prefix) applies.
type Domain string

const (
	OTA  Domain = "ota"
	IPSW Domain = "ipsw"
)

// MetadataKey is the fixed object store key for a domain's metadata document.
func (d Domain) MetadataKey() string {
	switch d {
	case OTA:
		return "ota_image_meta.json"
	case IPSW:
		return "ipsw_meta.json"
	default:
		return ""
	}
}

// MirrorPrefix returns the mirror namespace root for a domain.
func (d Domain) MirrorPrefix() string {
	return "mirror/" + string(d)
}

// AppleDBImportStateKey is the fixed key for the AppleDB import-state document.
const AppleDBImportStateKey = "appledb_import_state.json"

// Platform is the closed set of OTA platforms symx tracks.
type Platform string

const (
	PlatformIOS       Platform = "ios"
	PlatformWatchOS   Platform = "watchos"
	PlatformTVOS      Platform = "tvos"
	PlatformAudioOS   Platform = "audioos"
	PlatformAccessory Platform = "accessory"
	PlatformMacOS     Platform = "macos"
	PlatformRecovery  Platform = "recovery"
	PlatformVisionOS  Platform = "visionos"
)

// OTAPlatforms is the closed platform set the OTA index stage iterates.
var OTAPlatforms = []Platform{
	PlatformIOS,
	PlatformWatchOS,
	PlatformTVOS,
	PlatformAudioOS,
	PlatformAccessory,
	PlatformMacOS,
	PlatformRecovery,
}

// IpswPlatform is the closed set of platform strings AppleDB uses, which
// differ in case/spelling from the OTA platform set.
type IpswPlatform string

const (
	IpswAudioOS   IpswPlatform = "audioOS"
	IpswBridgeOS  IpswPlatform = "bridgeOS"
	IpswIOS       IpswPlatform = "iOS"
	IpswIPadOS    IpswPlatform = "iPadOS"
	IpswIPodOS    IpswPlatform = "iPodOS"
	IpswMacOS     IpswPlatform = "macOS"
	IpswTVOS      IpswPlatform = "tvOS"
	IpswVisionOS  IpswPlatform = "visionOS"
	IpswWatchOS   IpswPlatform = "watchOS"
)

// ReleaseStatus is the release channel of an IPSW entry.
type ReleaseStatus string

const (
	ReleaseRel  ReleaseStatus = "rel"
	ReleaseRC   ReleaseStatus = "rc"
	ReleaseBeta ReleaseStatus = "beta"
)
