package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"offload/pkg/config"
	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/sessions"
)

// copyFile streams one file to its destination, hashing as it goes, and
// verifies the destination by re-reading it. It returns the hex source
// checksum. On cancellation or failure the partial destination is removed;
// the source is never touched.
func (e *Engine) copyFile(sessionID, source, dest string, tier config.BufferTier, tracker *activeFile) (string, error) {
	in, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	hasher := sha256.New()
	buf := make([]byte, tier.BufferSize)

	if err = e.copyChunks(in, io.MultiWriter(out, hasher), buf, tracker); err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}

	// Flush to the device before trusting the verification read.
	if err = out.Sync(); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("sync destination: %w", err)
	}
	if err = out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close destination: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	if e.cfg.VerifyChecksums {
		verifying := models.FileVerifying
		e.updateFile(sessionID, source, sessions.FilePatch{Status: &verifying})

		destSum, verifyErr := hashFile(dest, buf)
		if verifyErr != nil {
			return "", fmt.Errorf("verify destination: %w", verifyErr)
		}
		if destSum != checksum {
			os.Remove(dest)
			return "", ErrChecksumMismatch
		}
	}

	// Preserve the source timestamps and mode; failure here is cosmetic.
	if err = os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		log.Debug().Err(err).Str("dest", dest).Msg("Failed to preserve timestamps")
	}
	if err = os.Chmod(dest, info.Mode().Perm()); err != nil {
		log.Debug().Err(err).Str("dest", dest).Msg("Failed to preserve mode")
	}

	return checksum, nil
}

// copyChunks pumps bytes through the buffer, checking the cancellation
// flag between chunks so an abort takes effect within one buffer's worth
// of work.
func (e *Engine) copyChunks(in io.Reader, out io.Writer, buf []byte, tracker *activeFile) error {
	for {
		if e.cancelled.Load() {
			return errCancelled
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write destination: %w", writeErr)
			}
			tracker.bytes.Add(int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read source: %w", readErr)
		}
	}
}

// hashFile computes the sha256 of a file reusing the caller's buffer.
func hashFile(path string, buf []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err = io.CopyBuffer(hasher, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
