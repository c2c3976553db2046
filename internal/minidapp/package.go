package minidapp

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/jsruntime"
)

// DefaultMaxPackageSize caps the uncompressed content of one archive.
const DefaultMaxPackageSize int64 = 100 << 20

// ExcludePatterns are matched against every path element (exact names) and against file
// names (glob patterns). Matching entries are left out of the archive.
var ExcludePatterns = []string{
	"__pycache__", "*.pyc", ".git", ".gitignore", ".gitattributes", "node_modules",
	".DS_Store", "Thumbs.db", ".env", "*.log", ".vscode", ".idea", "venv", "env", ".venv",
	".pytest_cache", "*.mds.zip", ".claude", "temp_minidapp", "*.jar", "*.md", "*.py",
	"README*", "LICENSE", "*.exe", "*.dll", "dist", "build", ".next", ".cache",
}

const mdsJSWarning = "mds.js not found in the MiniDapp. It will likely fail to load with ERR_BLOCKED_BY_ORB. " +
	"Download https://raw.githubusercontent.com/minima-global/Minima/master/mds/mds.js into the project " +
	`and load it with <script src="./mds.js"></script>`

// PackageRequest selects the project to archive.
type PackageRequest struct {
	ProjectPath string
	// OutputPath defaults to <parent>/<project>.mds.zip.
	OutputPath string
	// MaxSize defaults to DefaultMaxPackageSize.
	MaxSize int64
}

// PackageResult describes a written archive.
type PackageResult struct {
	ZipPath   string   `json:"zip_path"`
	SizeBytes int64    `json:"size_bytes"`
	FileCount int      `json:"file_count"`
	SizeMB    float64  `json:"size_mb"`
	Files     []string `json:"files"`
	Warnings  []string `json:"warnings,omitempty"`
}

func excluded(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	name := parts[len(parts)-1]
	for _, p := range ExcludePatterns {
		if strings.Contains(p, "*") {
			if ok, _ := path.Match(p, name); ok {
				return true
			}
			continue
		}
		for _, part := range parts {
			if part == p {
				return true
			}
		}
	}
	return false
}

type packEntry struct {
	abs, rel string
	size     int64
}

// Package zips a MiniDapp project into a .mds.zip archive. The project must hold a
// valid dapp.conf. A missing mds.js and JavaScript that does not parse are reported as
// warnings. Nothing is written when the content would exceed the size cap.
func Package(ctx context.Context, req PackageRequest) (*PackageResult, error) {
	info, err := os.Stat(req.ProjectPath)
	if err != nil || !info.IsDir() {
		return nil, ErrInvalidProject.Msgf("project directory not found: %s", req.ProjectPath)
	}
	if _, err := LoadConf(req.ProjectPath); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(req.ProjectPath)
	if err != nil {
		return nil, ErrIO.MsgErr("unable to resolve project path", err)
	}
	out := req.OutputPath
	if out == "" {
		out = filepath.Join(filepath.Dir(root), filepath.Base(root)+".mds.zip")
	}
	out, err = filepath.Abs(out)
	if err != nil {
		return nil, ErrIO.MsgErr("unable to resolve output path", err)
	}
	maxSize := req.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPackageSize
	}

	result := &PackageResult{ZipPath: out}
	if _, err := os.Stat(filepath.Join(root, "mds.js")); err != nil {
		result.Warnings = append(result.Warnings, mdsJSWarning)
		log.Warn().Str("project_path", root).Msg("mds.js missing from MiniDapp")
	}

	var entries []packEntry
	var total int64
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if excluded(rel) {
			log.Debug().Str("path", rel).Msg("excluded from package")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || p == out {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if total+fi.Size() > maxSize {
			return ErrPackageTooLarge.Msgf("package would exceed %d MB at %s (%.2f MB); check for unwanted files",
				maxSize>>20, rel, float64(fi.Size())/(1<<20))
		}
		total += fi.Size()
		entries = append(entries, packEntry{abs: p, rel: filepath.ToSlash(rel), size: fi.Size()})
		result.Warnings = append(result.Warnings, scriptWarnings(p, rel)...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMiniDapp) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, ErrIO.MsgErr("unable to scan project", err)
	}

	if err := writeZip(out, entries); err != nil {
		os.Remove(out)
		return nil, err
	}
	zi, err := os.Stat(out)
	if err != nil {
		return nil, ErrIO.MsgErr("unable to stat package", err)
	}
	for _, e := range entries {
		result.Files = append(result.Files, e.rel)
	}
	result.FileCount = len(entries)
	result.SizeBytes = zi.Size()
	result.SizeMB = math.Round(float64(total)/(1<<20)*100) / 100
	log.Info().Int("files", result.FileCount).Int64("bytes", result.SizeBytes).Str("zip_path", out).Msg("packaged MiniDapp")
	return result, nil
}

func scriptWarnings(abs, rel string) []string {
	ext := strings.ToLower(filepath.Ext(abs))
	if ext != ".js" && ext != ".html" && ext != ".htm" {
		return nil
	}
	// mds.js ships minified and is maintained upstream.
	if filepath.Base(abs) == "mds.js" {
		return nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return []string{"unable to read " + rel + ": " + err.Error()}
	}
	var errs []error
	if ext == ".js" {
		if err := jsruntime.Check(filepath.ToSlash(rel), string(src)); err != nil {
			errs = append(errs, err)
		}
	} else {
		errs = jsruntime.CheckHTML(filepath.ToSlash(rel), string(src))
	}
	var warnings []string
	for _, err := range errs {
		warnings = append(warnings, err.Error())
	}
	return warnings
}

func writeZip(out string, entries []packEntry) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return ErrIO.MsgErr("unable to create output directory", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return ErrIO.MsgErr("unable to create package", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := addToZip(zw, e); err != nil {
			zw.Close()
			return ErrIO.MsgErr("unable to add "+e.rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return ErrIO.MsgErr("unable to finish package", err)
	}
	return nil
}

func addToZip(zw *zip.Writer, e packEntry) error {
	src, err := os.Open(e.abs)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: e.rel, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
