package repository

import (
	"fmt"

	"github.com/okian/leadtier/internal/domain/model"
)

// Sentinel kinds for repository errors. They match model kinds with errors.Is.
var (
	ErrLeadNotFound   = fmt.Errorf("lead %w", model.ErrNotFound)
	ErrRecordNotFound = fmt.Errorf("score record %w", model.ErrNotFound)
	ErrInvalidLimit   = fmt.Errorf("invalid limit: %w", model.ErrValidation)
)
