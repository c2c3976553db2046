package minidapp

import (
	"net/http"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	ErrMiniDapp        apperrors.Error = apperrors.New("minidapp error")
	ErrInvalidProject  apperrors.Error = ErrMiniDapp.New("invalid minidapp project").SetStatusCode(http.StatusBadRequest)
	ErrInvalidConf     apperrors.Error = ErrMiniDapp.New("invalid dapp.conf").SetStatusCode(http.StatusBadRequest)
	ErrPathEscape      apperrors.Error = ErrMiniDapp.New("path escapes the project directory").SetStatusCode(http.StatusBadRequest)
	ErrPackageTooLarge apperrors.Error = ErrMiniDapp.New("package exceeds size limit").SetStatusCode(http.StatusRequestEntityTooLarge)
	ErrNotAnArchive    apperrors.Error = ErrMiniDapp.New("file is not a zip archive").SetStatusCode(http.StatusBadRequest)
	ErrIO              apperrors.Error = ErrMiniDapp.New("file system error")
)
