package extract

import "strings"

// OtaBundleID constructs the symsorter bundle identifier for an OTA
// artifact (spec.md §4.4, bit-exact): "ota_{artifact_key}".
func OtaBundleID(artifactKey string) string {
	return "ota_" + artifactKey
}

// IpswBundleID constructs the symsorter bundle identifier for an IPSW
// source (spec.md §4.4, bit-exact): "ipsw_{source_file_basename_without_extension, commas→underscores}".
func IpswBundleID(fileName string) string {
	base := fileName
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return "ipsw_" + strings.ReplaceAll(base, ",", "_")
}
