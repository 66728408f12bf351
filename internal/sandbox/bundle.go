package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// maxBundleFileSize caps individual files included in a source bundle.
const maxBundleFileSize = 10 * 1024 * 1024

// defaultBundleIgnores are always excluded, on top of .gitignore patterns.
var defaultBundleIgnores = []string{
	".git",
	"node_modules",
	"__pycache__",
	"vendor",
	"dist",
	"build",
	".venv",
	".DS_Store",
}

// BundleSources packs the given local directories into a tar archive suitable
// for upload into a workspace container. Each directory lands under its own
// base name, and files matched by the directory's .gitignore are skipped.
// A source that points at a single file is included as-is.
func BundleSources(sources []string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source %q: %w", src, err)
		}
		stat, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %q: %w", src, err)
		}

		if !stat.IsDir() {
			if err := addFile(tw, abs, filepath.Base(abs), stat); err != nil {
				return nil, err
			}
			continue
		}

		if err := addDir(tw, abs); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return &buf, nil
}

func addDir(tw *tar.Writer, root string) error {
	matcher := compileIgnores(root)
	base := filepath.Base(root)

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxBundleFileSize {
			return nil
		}

		return addFile(tw, path, filepath.ToSlash(filepath.Join(base, rel)), info)
	})
}

func addFile(tw *tar.Writer, path, name string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build header for %q: %w", path, err)
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %q: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to copy %q: %w", path, err)
	}
	return nil
}

// compileIgnores builds a matcher from the directory's .gitignore plus the
// built-in exclusions.
func compileIgnores(root string) gitignore.IgnoreParser {
	patterns := make([]string, 0, len(defaultBundleIgnores)+16)
	patterns = append(patterns, defaultBundleIgnores...)

	if f, err := os.Open(filepath.Join(root, ".gitignore")); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, line)
		}
		f.Close()
	}

	return gitignore.CompileIgnoreLines(patterns...)
}
