// Package archive reads package archives: a zip file carrying a YAML
// manifest, the package code and its signing certificate.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ManifestEntry = "manifest.yaml"
	CodeEntry     = "classes.dex"
	CertEntry     = "META-INF/CERT"
	// LibPrefix holds native libraries, extracted next to the code on install.
	LibPrefix = "lib/"
)

// install locations declared by a manifest
const (
	LocationAuto           = "auto"
	LocationInternalOnly   = "internalOnly"
	LocationPreferExternal = "preferExternal"
)

// ErrInvalidArchive is returned for unreadable or malformed archives.
var ErrInvalidArchive = errors.New("invalid package archive")

// VerifierDecl names a verification agent the package trusts and the digest
// of the certificate that agent must be signed with.
type VerifierDecl struct {
	Package   string `yaml:"package"`
	PublicKey string `yaml:"publicKey"`
}

// Manifest is the content of manifest.yaml.
type Manifest struct {
	Package         string         `yaml:"package"`
	Version         int64          `yaml:"version"`
	InstallLocation string         `yaml:"installLocation,omitempty"`
	TestOnly        bool           `yaml:"testOnly,omitempty"`
	Verifiers       []VerifierDecl `yaml:"verifiers,omitempty"`
}

// Info is everything the installer learns from an archive.
type Info struct {
	Manifest
	// CertDigest is the hex sha256 of the signing certificate.
	CertDigest string
	// ManifestDigest is the hex sha256 of the raw manifest.
	ManifestDigest string
	Size           int64
}

// Open parses the archive at path.
func Open(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: %v", path, err)
	}
	if !isZip(mtype) {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s is %s", path, mtype.String())
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: %v", path, err)
	}
	defer zr.Close()

	var (
		rawManifest []byte
		cert        []byte
		hasCode     bool
	)
	for _, f := range zr.File {
		switch f.Name {
		case ManifestEntry:
			rawManifest, err = readEntry(f)
		case CertEntry:
			cert, err = readEntry(f)
		case CodeEntry:
			hasCode = true
		}
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidArchive, "%s: read %s: %v", path, f.Name, err)
		}
	}

	if rawManifest == nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: no %s", path, ManifestEntry)
	}
	if cert == nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: unsigned", path)
	}
	if !hasCode {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: no %s", path, CodeEntry)
	}

	var m Manifest
	if err := yaml.Unmarshal(rawManifest, &m); err != nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: manifest: %v", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidArchive, "%s: %v", path, err)
	}

	info := &Info{
		Manifest:       m,
		CertDigest:     Digest(cert),
		ManifestDigest: Digest(rawManifest),
	}
	if st, err := os.Stat(path); err == nil {
		info.Size = st.Size()
	}
	return info, nil
}

func (m *Manifest) validate() error {
	if m.Package == "" || strings.ContainsAny(m.Package, "/ \t") {
		return errors.Errorf("bad package name %q", m.Package)
	}
	if m.Version < 0 {
		return errors.Errorf("bad version %d", m.Version)
	}
	switch m.InstallLocation {
	case "":
		m.InstallLocation = LocationAuto
	case LocationAuto, LocationInternalOnly, LocationPreferExternal:
	default:
		return errors.Errorf("bad install location %q", m.InstallLocation)
	}
	return nil
}

// isZip accepts zip and any zip-based format.
func isZip(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 1<<20))
}

// WritePublicResources writes to dst a copy of the archive at src without
// its code, for forward-locked packages whose code must stay private.
func WritePublicResources(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrapf(ErrInvalidArchive, "%s: %v", src, err)
	}
	defer zr.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create public resources")
	}

	zw := zip.NewWriter(out)
	for _, f := range zr.File {
		if f.Name == CodeEntry {
			continue
		}
		if err := copyEntry(zw, f); err != nil {
			out.Close()
			return errors.Wrapf(err, "copy %s", f.Name)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return errors.Wrap(err, "finish public resources")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ExtractNativeLibs writes the archive's lib/ entries, flattened, into dir
// and returns how many were written. Archives without libraries leave dir
// untouched.
func ExtractNativeLibs(src, dir string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidArchive, "%s: %v", src, err)
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, LibPrefix) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := path.Base(f.Name)
		if name == "." || name == ".." {
			continue
		}
		if n == 0 {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return 0, errors.Wrap(err, "create native library dir")
			}
		}
		if err := extractEntry(f, filepath.Join(dir, name)); err != nil {
			return n, errors.Wrapf(err, "extract %s", f.Name)
		}
		n++
	}
	return n, nil
}

func extractEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyEntry(zw *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	fw, err := zw.Create(f.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, rc)
	return err
}

// Build writes an archive with the given manifest, code, certificate and
// extra entries.
func Build(w io.Writer, m Manifest, code, cert []byte, extra map[string][]byte) error {
	raw, err := yaml.Marshal(&m)
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}

	zw := zip.NewWriter(w)
	entries := []struct {
		name string
		data []byte
	}{
		{ManifestEntry, raw},
		{CodeEntry, code},
		{CertEntry, cert},
	}
	for name, data := range extra {
		entries = append(entries, struct {
			name string
			data []byte
		}{name, data})
	}

	for _, e := range entries {
		if e.data == nil {
			continue
		}
		fw, err := zw.Create(e.name)
		if err != nil {
			return errors.Wrapf(err, "create %s", e.name)
		}
		if _, err := fw.Write(e.data); err != nil {
			return errors.Wrapf(err, "write %s", e.name)
		}
	}
	return zw.Close()
}

// BuildFile is Build into a new file at path.
func BuildFile(path string, m Manifest, code, cert []byte, extra map[string][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Build(f, m, code, cert, extra); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
