package minidapp

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
)

// Installer is the part of the MDS client that deploys archives.
type Installer interface {
	InstallMiniDappText(ctx context.Context, path string) (string, error)
}

// VerifyArchive checks that path exists and sniffs as a zip archive. It returns the
// absolute path the node should be given.
func VerifyArchive(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrIO.MsgErr("unable to resolve archive path", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrInvalidProject.Msgf("zip file not found: %s", path)
		}
		return "", ErrIO.MsgErr("unable to open archive", err)
	}
	defer f.Close()

	// 261 bytes is enough for filetype sniffing.
	header := make([]byte, 261)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrNotAnArchive.Msgf("%s is empty", path)
		}
		return "", ErrIO.MsgErr("unable to read archive", err)
	}
	kind, err := filetype.Match(header[:n])
	if err != nil || kind.Extension != "zip" {
		detected := kind.MIME.Value
		if detected == "" {
			detected = "unknown"
		}
		return "", ErrNotAnArchive.Msgf("%s is not a zip archive (detected %s)", path, detected)
	}
	return abs, nil
}

// Install verifies the archive and asks the node to install it. The node acknowledges
// installs in plain text, which is returned unchanged.
func Install(ctx context.Context, node Installer, path string) (string, error) {
	abs, err := VerifyArchive(path)
	if err != nil {
		return "", err
	}
	reply, err := node.InstallMiniDappText(ctx, abs)
	if err != nil {
		return "", err
	}
	log.Info().Str("zip_path", abs).Msg("installed MiniDapp")
	return reply, nil
}
