package extract

import (
	"context"

	"github.com/pkg/errors"
)

// Symsorter invokes the external `symsorter` binary (spec.md §6, bit-exact
// contract: `symsorter -zz -o <out> --prefix <platform> --bundle-id <id>
// [--ignore-errors] <input>`).
type Symsorter struct {
	Runner runner
}

// Sort runs symsorter over input, writing into out under platform/bundleID.
func (s *Symsorter) Sort(ctx context.Context, input, out, platform, bundleID string, ignoreErrors bool) error {
	args := []string{"-zz", "-o", out, "--prefix", platform, "--bundle-id", bundleID}
	if ignoreErrors {
		args = append(args, "--ignore-errors")
	}
	args = append(args, input)
	res, err := s.Runner.Run(ctx, "", "symsorter", args...)
	if err != nil {
		return errors.Wrap(err, "invoking symsorter")
	}
	if res.ExitCode != 0 && !ignoreErrors {
		return errors.Errorf("symsorter exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// SortMountedVolume mounts an IPSW's system image, symsorts the whole
// mounted volume with errors ignored (to capture non-DSC binaries
// alongside the DSC splits), then unmounts (spec.md §4.4, IPSW branch:
// "mount the system image and symsort the mounted volume as a whole...
// SIGINT the mount subprocess on completion"). Unmount here is the
// cooperative hdiutil detach rather than a literal SIGINT to a background
// mount process, since symx's mounter is a synchronous attach/detach pair
// rather than a long-lived foreground mount command.
func (s *Symsorter) SortMountedVolume(ctx context.Context, m mounter, imagePath, out, platform, bundleID string) error {
	mountPoint, err := m.Mount(ctx, imagePath)
	if err != nil {
		return errors.Wrap(err, "mounting system image for whole-volume symsort")
	}
	defer m.Unmount(ctx, mountPoint)
	return s.Sort(ctx, mountPoint, out, platform, bundleID, true)
}
