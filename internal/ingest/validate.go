package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"kbsync/internal/config"
	"kbsync/internal/model"
)

// ValidateFile accepts or rejects a candidate upload before any network
// activity. Same input, same verdict: the check depends only on the file
// name, its size, and the configured limits.
func ValidateFile(name string, sizeBytes int64, limits config.Upload) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return &model.ServiceError{
			Kind:    model.KindValidation,
			Message: fmt.Sprintf("file %q has no extension (allowed: %s)", filepath.Base(name), strings.Join(limits.AllowedTypes, ", ")),
		}
	}
	allowed := false
	for _, candidate := range limits.AllowedTypes {
		if strings.ToLower(candidate) == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return &model.ServiceError{
			Kind:    model.KindValidation,
			Message: fmt.Sprintf("file type %s is not allowed (allowed: %s)", ext, strings.Join(limits.AllowedTypes, ", ")),
		}
	}

	maxBytes := int64(limits.MaxFileMB) * 1024 * 1024
	if sizeBytes > maxBytes {
		return &model.ServiceError{
			Kind:    model.KindValidation,
			Message: fmt.Sprintf("file is %.1f MB, over the %d MB limit", float64(sizeBytes)/(1024*1024), limits.MaxFileMB),
		}
	}
	if sizeBytes <= 0 {
		return &model.ServiceError{
			Kind:    model.KindValidation,
			Message: "file is empty",
		}
	}
	return nil
}
