package resolver

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"offload/pkg/config"
)

// ResolverTestSuite tests destination path resolution.
type ResolverTestSuite struct {
	suite.Suite
	resolver *Resolver
	cfg      *config.Config
	destRoot string
	srcRoot  string
}

// SetupTest runs before each test.
func (s *ResolverTestSuite) SetupTest() {
	// Fixed clock so date and timestamp templating is deterministic.
	clock := func() time.Time {
		return time.Date(2024, 6, 15, 10, 30, 45, 0, time.UTC)
	}
	s.resolver = NewWithClock(clock)
	s.cfg = config.Default()
	s.destRoot = filepath.Join("/", "data", "imports")
	s.srcRoot = filepath.Join("/", "media", "card")
}

// TestResolvePlain tests resolution with all templating disabled.
func (s *ResolverTestSuite) TestResolvePlain() {
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "DCIM", "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.destRoot, "DCIM", "photo1.jpg"), resolved.Path)
	s.Equal("photo1.jpg", resolved.FileName)
	s.Equal(filepath.Join(s.destRoot, "DCIM"), resolved.Directory)
}

// TestResolveFlatten tests hierarchy flattening.
func (s *ResolverTestSuite) TestResolveFlatten() {
	s.cfg.FlattenFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "DCIM", "100CANON", "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.destRoot, "photo1.jpg"), resolved.Path)
}

// TestResolveDateFolder tests date-based folder insertion.
func (s *ResolverTestSuite) TestResolveDateFolder() {
	s.cfg.DateFolders = true
	s.cfg.DateFolderFormat = "2006-01-02"
	s.cfg.FlattenFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.destRoot, "2024-06-15", "photo1.jpg"), resolved.Path)
}

// TestResolveDeviceFolder tests device-based folder insertion with name sanitization.
func (s *ResolverTestSuite) TestResolveDeviceFolder() {
	s.cfg.DeviceFolders = true
	s.cfg.FlattenFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, `SD: "Card" <1>`)
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.destRoot, "SD Card 1", "photo1.jpg"), resolved.Path)
}

// TestResolveRename tests filename replacement with the timestamp pattern.
func (s *ResolverTestSuite) TestResolveRename() {
	s.cfg.RenameFiles = true
	s.cfg.TimestampPattern = "20060102_150405"
	s.cfg.FlattenFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "")
	s.Require().NoError(err)
	s.Equal("20240615_103045.jpg", resolved.FileName)
}

// TestResolveTimestampPrefix tests timestamp insertion that keeps the name.
func (s *ResolverTestSuite) TestResolveTimestampPrefix() {
	s.cfg.TimestampNames = true
	s.cfg.FlattenFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "")
	s.Require().NoError(err)
	s.Equal("20240615_103045_photo1.jpg", resolved.FileName)
}

// TestResolveTemplateOrder tests date before device before hierarchy.
func (s *ResolverTestSuite) TestResolveTemplateOrder() {
	s.cfg.DateFolders = true
	s.cfg.DeviceFolders = true
	resolved, err := s.resolver.Resolve(
		filepath.Join(s.srcRoot, "DCIM", "photo1.jpg"), s.srcRoot, s.destRoot, s.cfg, "CARD")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.destRoot, "2024-06-15", "CARD", "DCIM", "photo1.jpg"), resolved.Path)
}

// TestResolveTraversalContained tests that crafted source paths never escape
// the destination root.
func (s *ResolverTestSuite) TestResolveTraversalContained() {
	sources := []string{
		"../../x",
		"../../../etc/passwd",
		filepath.Join(s.srcRoot, "..", "..", "etc", "shadow"),
		"/etc/hosts",
		"....//....//x",
	}

	for _, src := range sources {
		resolved, err := s.resolver.Resolve(src, s.srcRoot, s.destRoot, s.cfg, "")
		s.Require().NoError(err, src)
		s.True(resolved.Path == s.destRoot ||
			strings.HasPrefix(resolved.Path, s.destRoot+string(filepath.Separator)),
			"resolved %q outside root: %q", src, resolved.Path)
	}
}

// TestResolveRelativeDestRoot tests that a relative destination root is
// resolved to absolute form.
func (s *ResolverTestSuite) TestResolveRelativeDestRoot() {
	resolved, err := s.resolver.Resolve("photo.jpg", "", "imports", s.cfg, "")
	s.Require().NoError(err)
	s.True(filepath.IsAbs(resolved.Path))
}

// TestResolveEmptyInputs tests input validation.
func (s *ResolverTestSuite) TestResolveEmptyInputs() {
	_, err := s.resolver.Resolve("", s.srcRoot, s.destRoot, s.cfg, "")
	s.ErrorIs(err, ErrEmptySource)

	_, err = s.resolver.Resolve("photo.jpg", s.srcRoot, "", s.cfg, "")
	s.ErrorIs(err, ErrEmptyRoot)
}

// TestResolveDeterministic tests that resolution is a pure function of its
// inputs.
func (s *ResolverTestSuite) TestResolveDeterministic() {
	src := filepath.Join(s.srcRoot, "DCIM", "photo1.jpg")
	first, err := s.resolver.Resolve(src, s.srcRoot, s.destRoot, s.cfg, "CARD")
	s.Require().NoError(err)
	second, err := s.resolver.Resolve(src, s.srcRoot, s.destRoot, s.cfg, "CARD")
	s.Require().NoError(err)
	s.Equal(first, second)
}

// TestSanitizeName tests illegal character stripping.
func (s *ResolverTestSuite) TestSanitizeName() {
	testCases := []struct {
		in   string
		want string
	}{
		{"EOS_DIGITAL", "EOS_DIGITAL"},
		{`bad<>:"/\|?*name`, "badname"},
		{"  dotty.  ", "dotty"},
		{`<>:*`, "device"},
		{"", "device"},
	}

	for _, tc := range testCases {
		s.Equal(tc.want, SanitizeName(tc.in), tc.in)
	}
}

func TestResolverTestSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}
