package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"offload/pkg/log"
	"offload/pkg/models"
)

// writeManifest drops a checksum manifest next to the copied files so the
// destination can be audited later with the session gone. One line per
// completed file: checksum, size, path relative to the destination root.
func (e *Engine) writeManifest(sessionID, destRoot string) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, file := range session.Files {
		if file.Status != models.FileComplete || file.Checksum == "" {
			continue
		}
		rel, relErr := filepath.Rel(destRoot, file.DestinationPath)
		if relErr != nil {
			rel = file.DestinationPath
		}
		fmt.Fprintf(&sb, "%s  %d  %s\n", file.Checksum, file.Size, rel)
	}
	if sb.Len() == 0 {
		return nil
	}

	path := filepath.Join(destRoot, manifestName(sessionID))
	if err = os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	log.Debug().Str("manifest", path).Msg("Checksum manifest written")
	return nil
}

func manifestName(sessionID string) string {
	return "offload-" + sessionID + ".sha256"
}
