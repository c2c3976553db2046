package config

import "github.com/tansive/minima-mcp/internal/common/apperrors"

var (
	ErrConfig        apperrors.Error = apperrors.New("configuration error")
	ErrConfigRead    apperrors.Error = ErrConfig.New("error reading config file")
	ErrConfigParse   apperrors.Error = ErrConfig.New("error parsing config file")
	ErrInvalidConfig apperrors.Error = ErrConfig.New("invalid configuration")
)
