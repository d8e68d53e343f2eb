package releaser

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// BinaryName is the name of the chart-releaser executable inside its
// release tarball.
const BinaryName = "cr"

// downloadURLTemplate builds the GitHub release tarball URL for a given
// version (with leading "v"), OS, and architecture.
const downloadURLTemplate = "https://github.com/helm/chart-releaser/releases/download/%s/chart-releaser_%s_%s_%s.tar.gz"

// Installer downloads and caches the cr binary per version and
// architecture. The install directory is never added to PATH; Ensure
// returns the resolved binary path for explicit invocation.
type Installer struct {
	// CacheDir is the tool cache root, e.g. $RUNNER_TOOL_CACHE.
	CacheDir string
	// Version is the chart-releaser version to install, with leading "v".
	Version string
	// Client is the HTTP client used for the download. Nil means a client
	// with a 5 minute timeout.
	Client *http.Client
	// Logger is used for progress output.
	Logger *slog.Logger
}

// InstallDir returns the per-version, per-architecture install directory.
func (i *Installer) InstallDir() string {
	return filepath.Join(i.CacheDir, BinaryName, i.Version, runtime.GOARCH)
}

// Ensure makes the cr binary available and returns its path. An existing
// installation is reused without touching the network.
func (i *Installer) Ensure(ctx context.Context) (string, error) {
	if i.CacheDir == "" {
		return "", errors.New("tool cache directory is not configured")
	}

	if info, err := os.Stat(i.CacheDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("tool cache directory %q does not exist", i.CacheDir)
	}

	bin := filepath.Join(i.InstallDir(), BinaryName)

	if _, err := os.Stat(bin); err == nil {
		i.logger().Debug("chart-releaser already installed", slog.String("path", bin))

		return bin, nil
	}

	return i.install(ctx, i.downloadURL())
}

// install downloads and extracts the release tarball behind url. Extraction
// goes through a staging directory that is renamed into place only after
// the binary is verified, so an interrupted download never leaves a
// half-written cr at the final path for a later Ensure to pick up.
func (i *Installer) install(ctx context.Context, url string) (string, error) {
	installDir := i.InstallDir()
	parent := filepath.Dir(installDir)

	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", fmt.Errorf("creating install directory %q: %w", parent, err)
	}

	i.logger().Info("installing chart-releaser",
		slog.String("version", i.Version),
		slog.String("dir", installDir),
	)

	staging, err := os.MkdirTemp(parent, "cr-staging-")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := i.download(ctx, url, staging); err != nil {
		return "", err
	}

	if _, err := os.Stat(filepath.Join(staging, BinaryName)); err != nil {
		return "", fmt.Errorf("archive from %s did not contain %q", url, BinaryName)
	}

	// An older interrupted install may have left the directory behind.
	if err := os.RemoveAll(installDir); err != nil {
		return "", fmt.Errorf("clearing install directory %q: %w", installDir, err)
	}

	if err := os.Rename(staging, installDir); err != nil {
		return "", fmt.Errorf("activating install directory %q: %w", installDir, err)
	}

	return filepath.Join(installDir, BinaryName), nil
}

// downloadURL returns the release tarball URL for the configured version
// and the current platform.
func (i *Installer) downloadURL() string {
	return fmt.Sprintf(downloadURLTemplate,
		i.Version,
		strings.TrimPrefix(i.Version, "v"),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// download fetches the tarball and extracts it into dir.
func (i *Installer) download(ctx context.Context, url, dir string) error {
	client := i.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	if err := extractTarGz(resp.Body, dir); err != nil {
		return fmt.Errorf("extracting %s: %w", url, err)
	}

	return nil
}

// extractTarGz unpacks a gzipped tarball into dir. Entries escaping dir are
// rejected.
func extractTarGz(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry %q escapes destination", hdr.Name)
		}

		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("creating directory %q: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(tr, target, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks and other entry types are not expected in the
			// chart-releaser tarball; skip them.
		}
	}
}

func writeFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating directory for %q: %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file %q: %w", target, err)
	}

	// Cap extraction at 256 MB to keep a corrupt archive from filling disk.
	if _, err := io.Copy(f, io.LimitReader(r, 256<<20)); err != nil {
		f.Close()

		return fmt.Errorf("writing file %q: %w", target, err)
	}

	return f.Close()
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}

	return slog.Default()
}
