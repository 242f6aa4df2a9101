// Package artifacts bundles run output directories into compressed
// archives and optionally uploads them to S3.
package artifacts

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Bundle packs every regular file under dir into dir.tar.gz (a sibling
// of dir) and returns the archive path. Paths inside the archive are
// relative to dir.
func Bundle(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("bundle %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bundle %s: not a directory", dir)
	}

	archivePath := filepath.Clean(dir) + ".tar.gz"
	f, err := os.Create(archivePath) // #nosec G304 - derived from operator-supplied dir
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	walkErr := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		src, err := os.Open(path) // #nosec G304 - walking operator-supplied dir
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		src.Close() //nolint:errcheck
		return err
	})

	if walkErr != nil {
		tw.Close() //nolint:errcheck
		gw.Close() //nolint:errcheck
		f.Close()  //nolint:errcheck
		os.Remove(archivePath) //nolint:errcheck
		return "", fmt.Errorf("bundle %s: %w", dir, walkErr)
	}

	for _, c := range []io.Closer{tw, gw, f} {
		if err := c.Close(); err != nil {
			return "", fmt.Errorf("finalize archive: %w", err)
		}
	}
	return archivePath, nil
}

// Unbundle extracts an archive produced by Bundle into dest. Used by
// tests and for pulling remote bundles apart locally.
func Unbundle(archivePath, dest string) error {
	f, err := os.Open(archivePath) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	defer gr.Close() //nolint:errcheck

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		target := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}

		out, err := os.Create(target) // #nosec G304 - path validated above
		if err != nil {
			return err
		}
		// Entry sizes are bounded by what Bundle wrote.
		if _, err := io.Copy(out, tr); err != nil { // #nosec G110
			out.Close() //nolint:errcheck
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
