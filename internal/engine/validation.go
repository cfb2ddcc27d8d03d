package engine

import (
	"strings"
	"unicode"

	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine/errdefs"
)

// validateDefinition checks the input constraints on a definition before
// it is accepted by create or update. It does not check id uniqueness;
// that is the catalog's job.
func validateDefinition(def catalog.Definition) error {
	if strings.TrimSpace(def.ID) == "" {
		return errdefs.NewValidationError("id", "must not be empty")
	}
	if strings.TrimSpace(def.Command) == "" {
		return errdefs.NewValidationError("command", "must not be empty")
	}
	if err := validateCwd(def.Cwd); err != nil {
		return err
	}
	if err := validateEnv(def.Env); err != nil {
		return err
	}
	return nil
}

func validateCwd(cwd string) error {
	if cwd == "" {
		return nil // absent cwd is permitted; the supervisor's own working directory is used
	}
	for _, part := range strings.Split(filepathToSlash(cwd), "/") {
		if part == ".." {
			return errdefs.NewValidationError("cwd", "must not contain parent-path traversal (\"..\") components")
		}
	}
	return nil
}

func validateEnv(env map[string]string) error {
	for k := range env {
		if k == "" {
			return errdefs.NewValidationError("env", "keys must not be empty")
		}
		for _, r := range k {
			if r == 0 || unicode.IsControl(r) {
				return errdefs.NewValidationError("env", "keys must not contain null or control characters")
			}
		}
	}
	return nil
}

func filepathToSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}
