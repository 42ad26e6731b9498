package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mirabel-dev/folio/pkg/store/blob/s3"
)

// Validate checks the configuration against its struct tags.
//
// The blob section is only validated when something in it is set: a bare
// default config is valid so tooling like `folio migrate` can run without S3
// credentials. The start command refuses to serve without blob storage.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.StructExcept(cfg, "Blob"); err != nil {
		return translateValidationError(err)
	}

	if cfg.Blob != (s3.Config{}) {
		if err := validate.Struct(cfg.Blob); err != nil {
			return translateValidationError(err)
		}
	}

	return nil
}

// BlobConfigured reports whether the S3 section has been filled in.
func BlobConfigured(cfg *Config) bool {
	return cfg.Blob.Endpoint != "" || cfg.Blob.Bucket != ""
}

// translateValidationError rewrites validator errors into something a user
// editing a config file can act on.
func translateValidationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, fieldErr := range errs {
		switch fieldErr.Tag() {
		case "required":
			return fmt.Errorf("missing required field %q", fieldErr.Namespace())
		case "oneof":
			return fmt.Errorf("field %q must be one of [%s], got %q",
				fieldErr.Namespace(), fieldErr.Param(), fieldErr.Value())
		case "gt":
			return fmt.Errorf("field %q must be greater than %s",
				fieldErr.Namespace(), fieldErr.Param())
		default:
			return fmt.Errorf("field %q failed validation rule %q",
				fieldErr.Namespace(), fieldErr.Tag())
		}
	}
	return err
}
