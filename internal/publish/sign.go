package publish

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/logfields"
)

// ChecksumName is the checksum manifest written into each publish directory.
// A stable copy named SHA256SUMS (plus SHA256SUMS.gpg) is kept alongside for
// consumers expecting the conventional name.
const ChecksumName = "SHA256SUM"

// Signer produces a checksum manifest over every file of a publish directory
// and a detached GPG signature for it.
type Signer struct {
	Key string
}

// SignAll signs every given publish directory. An empty key is a
// configuration error.
func (s *Signer) SignAll(ctx context.Context, dirs []string) error {
	if s.Key == "" {
		return fmt.Errorf("pass key to config file for sign")
	}
	for _, dir := range dirs {
		if err := s.signDir(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signer) signDir(ctx context.Context, dir string) error {
	files, err := manifestFiles(dir)
	if err != nil {
		return err
	}
	slog.Info("Calculating checksums", logfields.Path(dir),
		slog.String("files", strings.Join(files, ",")))

	manifest, err := buildManifest(dir, files)
	if err != nil {
		return err
	}
	sumPath := filepath.Join(dir, ChecksumName)
	if err := os.WriteFile(sumPath, []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("failed to write checksum manifest: %w", err)
	}
	if err := copyFile(sumPath, filepath.Join(dir, "SHA256SUMS")); err != nil {
		return fmt.Errorf("failed to copy checksum manifest: %w", err)
	}

	slog.Info("Signing checksums", logfields.Path(sumPath))
	cmd := exec.CommandContext(ctx, "gpg2", "--yes", "-basu", s.Key, sumPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gpg2 failed for %q: %w", sumPath, err)
	}
	if err := copyFile(sumPath+".asc", filepath.Join(dir, "SHA256SUMS.gpg")); err != nil {
		return fmt.Errorf("failed to copy signature: %w", err)
	}
	return nil
}

// manifestFiles lists the regular files of a publish directory, excluding
// prior manifests and signatures, in stable name order.
func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read publish directory %q: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(entry.Name(), ChecksumName) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// buildManifest renders sha256sum-compatible manifest lines.
func buildManifest(dir string, files []string) (string, error) {
	var b strings.Builder
	for _, name := range files {
		sum, err := fileSHA256(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, name)
	}
	return b.String(), nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %q for checksumming: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %q: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
