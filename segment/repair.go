package segment

import (
	"fmt"
	"io"
	"os"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// Repairer fixes narrow, safe defects reported by Validate. The only
// supported fix is correcting a header's declared event count to the
// actual scanned count. It never attempts to recover corrupt payloads.
type Repairer struct {
	// Backup copies the original file to <path>.bak before touching it.
	Backup bool
}

// Repair applies the supported fixes for res. It returns true when the
// segment was modified. Results containing structural or CRC issues are
// refused: the scan count cannot be trusted past a corruption.
func (r *Repairer) Repair(res ValidationResult) (bool, error) {
	if res.OK {
		return false, nil
	}
	if !res.HeaderOK {
		return false, fmt.Errorf("segment %s: header is corrupt; not repairable", res.Path)
	}
	for _, issue := range res.Issues {
		if issue.Kind != IssueCountMismatch {
			return false, fmt.Errorf("segment %s: %s is not repairable", res.Path, issue.Kind)
		}
	}

	if r.Backup {
		if err := copyFile(res.Path, res.Path+".bak"); err != nil {
			return false, fmt.Errorf("failed to write backup: %w", err)
		}
	}

	hdr := res.Header
	hdr.EventCount = res.ActualEvents

	f, err := os.OpenFile(res.Path, os.O_RDWR, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var buf [format.SegmentHeaderSize]byte
	if err := hdr.Marshal(buf[:]); err != nil {
		return false, err
	}
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return false, fmt.Errorf("failed to rewrite header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return false, err
	}
	log.Info("repaired %s: event count %d -> %d", res.Path, res.Header.EventCount, res.ActualEvents)
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
