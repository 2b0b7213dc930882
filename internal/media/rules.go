package media

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
)

const megabyte = 1 << 20

// Kinds lists the accepted media kinds.
var Kinds = []string{models.MediaPhoto, models.MediaAudio, models.MediaVideo, models.MediaDocument}

// allowedKind reports whether the check point accepts media of kind.
func allowedKind(p *models.CheckPoint, kind string) bool {
	switch kind {
	case models.MediaPhoto:
		return p.CanPhoto
	case models.MediaAudio:
		return p.CanAudio
	case models.MediaVideo:
		return p.CanVideo
	case models.MediaDocument:
		return p.CanFiles
	}
	return false
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// maxBytes is the size limit of the check point in bytes.
func maxBytes(p *models.CheckPoint) int64 {
	return int64(p.MaxFileSizeMB) * megabyte
}

// Check applies the check point media rules to an upload whose size is
// known. A negative size skips the size rule.
func Check(p *models.CheckPoint, kind, name string, size int64) error {
	reject := func(format string, args ...any) error {
		return &gmaoerr.MediaRejectedError{CheckPointID: p.ID, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}
	if !slices.Contains(Kinds, kind) {
		return reject("unknown media kind")
	}
	if !allowedKind(p, kind) {
		return reject("check point does not accept %s", strings.ToLower(kind))
	}
	if len(p.AllowedFileTypes) > 0 {
		ext := Extension(name)
		if ext == "" || !slices.Contains([]string(p.AllowedFileTypes), ext) {
			return reject("extension %q not in %s", ext, strings.Join(p.AllowedFileTypes, ", "))
		}
	}
	if size >= 0 && p.MaxFileSizeMB > 0 && size > maxBytes(p) {
		return reject("%d bytes exceeds the %d MB limit", size, p.MaxFileSizeMB)
	}
	return nil
}
