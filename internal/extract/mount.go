package extract

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// hdiutilMounter mounts/unmounts DMGs via the host's `hdiutil` binary,
// symx's only supported DMG mounter (spec.md §4.4: "the mount step is
// platform-specific and uses the host's DMG mounter").
type hdiutilMounter struct {
	Runner runner
}

var _ mounter = &hdiutilMounter{}

// NewMounter constructs the production hdiutil-backed mounter for
// Procedure.Mounter and Symsorter.SortMountedVolume callers outside this
// package.
func NewMounter(r runner) *hdiutilMounter {
	return &hdiutilMounter{Runner: r}
}

func (h *hdiutilMounter) Mount(ctx context.Context, imagePath string) (string, error) {
	res, err := h.Runner.Run(ctx, "", "hdiutil", "attach", "-nobrowse", "-plist", imagePath)
	if err != nil {
		return "", errors.Wrapf(err, "mounting %s", imagePath)
	}
	if res.ExitCode != 0 {
		return "", errors.Errorf("hdiutil attach exited %d: %s", res.ExitCode, res.Stderr)
	}
	mountPoint := parseMountPoint(string(res.Stdout))
	if mountPoint == "" {
		return "", errors.Errorf("could not determine mount point for %s", imagePath)
	}
	return mountPoint, nil
}

func (h *hdiutilMounter) Unmount(ctx context.Context, mountPoint string) error {
	res, err := h.Runner.Run(ctx, "", "hdiutil", "detach", mountPoint)
	if err != nil {
		return errors.Wrapf(err, "unmounting %s", mountPoint)
	}
	if res.ExitCode != 0 {
		return errors.Errorf("hdiutil detach exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// parseMountPoint extracts the mount-point path from hdiutil's plist
// output by scanning for the last /Volumes/ path on a <string> line, which
// is the volume's mount point in hdiutil's -plist system-entities array.
func parseMountPoint(plist string) string {
	var last string
	for _, line := range strings.Split(plist, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "<string>/") {
			continue
		}
		val := strings.TrimSuffix(strings.TrimPrefix(line, "<string>"), "</string>")
		if strings.HasPrefix(val, "/Volumes/") {
			last = val
		}
	}
	return last
}
