package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"offload/pkg/config"
	"offload/pkg/models"
)

// fakeLister returns a canned device list for monitor and scanner tests.
type fakeLister struct {
	devices []models.Device
	err     error
}

func (f *fakeLister) List() ([]models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

// ScanTestSuite tests the recursive mount point scan.
type ScanTestSuite struct {
	suite.Suite
	root    string
	scanner *Scanner
	cfg     *config.Config
}

// SetupTest runs before each test.
func (s *ScanTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.scanner = NewScannerWith(&fakeLister{}, nil)
	s.cfg = config.Default()
	s.cfg.FilterEnabled = false
}

func (s *ScanTestSuite) write(rel string, size int) string {
	path := filepath.Join(s.root, rel)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o750))
	s.Require().NoError(os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

// TestScanCollectsFiles tests basic traversal into nested directories.
func (s *ScanTestSuite) TestScanCollectsFiles() {
	s.write("a.jpg", 10)
	s.write("DCIM/b.jpg", 20)
	s.write("DCIM/100CANON/c.mp4", 30)

	result, err := s.scanner.Scan(s.root, s.cfg)
	s.Require().NoError(err)
	s.Equal(3, result.FileCount)
	s.Equal(int64(60), result.TotalSize)
	s.Len(result.Files, 3)
	s.GreaterOrEqual(result.ScanTimeMs, int64(0))
}

// TestScanExtensionFilter tests the case-insensitive allowlist.
func (s *ScanTestSuite) TestScanExtensionFilter() {
	s.write("photo1.jpg", 1)
	s.write("photo2.PNG", 1)
	s.write("video.mp4", 1)
	s.write("doc.txt", 1)

	s.cfg.FilterEnabled = true
	s.cfg.MediaExtensions = []string{".jpg", ".png", ".mp4"}

	result, err := s.scanner.Scan(s.root, s.cfg)
	s.Require().NoError(err)
	s.Equal(3, result.FileCount)
	for _, f := range result.Files {
		s.NotContains(f.Path, "doc.txt")
	}
}

// TestScanSkipsSymlinks tests that symlinks, including cycles back into the
// tree, never enter the result and the scan terminates.
func (s *ScanTestSuite) TestScanSkipsSymlinks() {
	target := s.write("real/a.jpg", 5)
	s.Require().NoError(os.Symlink(target, filepath.Join(s.root, "link.jpg")))
	// Directory symlink cycle: sub/loop -> root.
	s.Require().NoError(os.MkdirAll(filepath.Join(s.root, "sub"), 0o750))
	s.Require().NoError(os.Symlink(s.root, filepath.Join(s.root, "sub", "loop")))

	result, err := s.scanner.Scan(s.root, s.cfg)
	s.Require().NoError(err)
	s.Equal(1, result.FileCount)
	s.Equal(target, result.Files[0].Path)
}

// TestScanDeduplicatesHardLinks tests that entries sharing an inode are
// counted exactly once.
func (s *ScanTestSuite) TestScanDeduplicatesHardLinks() {
	original := s.write("one.jpg", 7)
	s.Require().NoError(os.Link(original, filepath.Join(s.root, "two.jpg")))

	result, err := s.scanner.Scan(s.root, s.cfg)
	s.Require().NoError(err)
	s.Equal(1, result.FileCount)
	s.Equal(int64(7), result.TotalSize)
}

// TestScanUnreadableSubdirContinues tests that a permission error on one
// directory does not abort the scan.
func (s *ScanTestSuite) TestScanUnreadableSubdirContinues() {
	if os.Getuid() == 0 {
		s.T().Skip("Skipping permission test - root bypasses mode bits")
	}

	s.write("ok/a.jpg", 1)
	locked := filepath.Join(s.root, "locked")
	s.Require().NoError(os.MkdirAll(locked, 0o750))
	s.Require().NoError(os.WriteFile(filepath.Join(locked, "hidden.jpg"), []byte("x"), 0o600))
	s.Require().NoError(os.Chmod(locked, 0o000))
	defer os.Chmod(locked, 0o750) //nolint:errcheck

	result, err := s.scanner.Scan(s.root, s.cfg)
	s.Require().NoError(err)
	s.Equal(1, result.FileCount)
}

// TestScanMissingRoot tests that an unusable root is a hard error.
func (s *ScanTestSuite) TestScanMissingRoot() {
	_, err := s.scanner.Scan(filepath.Join(s.root, "nope"), s.cfg)
	s.ErrorIs(err, ErrScanRoot)

	file := s.write("plain.jpg", 1)
	_, err = s.scanner.Scan(file, s.cfg)
	s.ErrorIs(err, ErrScanRoot)
}

// TestListRemovable tests predicate filtering over the lister snapshot.
func (s *ScanTestSuite) TestListRemovable() {
	lister := &fakeLister{devices: []models.Device{
		{ID: "sda", Removable: false, Bus: models.BusSATA},
		{ID: "sdb", Removable: true, Bus: models.BusUSB},
		{ID: "sdc", Removable: true, Bus: models.BusSCSI},
		{ID: "mmcblk0", Removable: true, Bus: models.BusMMC},
		{ID: "sdd", Removable: true, System: true, Bus: models.BusUSB},
	}}
	scanner := NewScannerWith(lister, nil)

	removable, err := scanner.ListRemovable()
	s.Require().NoError(err)
	s.Len(removable, 2)
	s.Equal("sdb", removable[0].ID)
	s.Equal("mmcblk0", removable[1].ID)
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
