package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// GetWorkDir expands base, joins the extra path parts and makes sure the directory exists.
func GetWorkDir(base string, path ...string) (string, error) {
	parts := append([]string{base}, path...)
	workDir, err := homedir.Expand(filepath.Join(parts...))
	if err != nil {
		return "", errors.WithMessage(err, "cant expand work dir")
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return "", errors.WithMessage(err, "cant create work dir")
	}
	return workDir, nil
}
