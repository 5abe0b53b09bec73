// Package upload defines the artifact upload contract and a local
// filesystem implementation.
package upload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

// Uploader stores a finished artifact and returns where it landed.
// Implementations return the storage system identifier and a URL the
// caller can hand out. Any error is a non-recoverable upload failure
// unless the implementation marks it otherwise.
type Uploader interface {
	Upload(localPath, fileName, appID string) (system string, url string, err error)
}

// LocalUploader copies artifacts into a directory tree under root,
// partitioned by app id, and returns file URLs under baseURL.
type LocalUploader struct {
	root    string
	baseURL string
	logger  *zap.SugaredLogger
}

// NewLocalUploader creates a local filesystem uploader.
func NewLocalUploader(root, baseURL string, logger *zap.SugaredLogger) *LocalUploader {
	return &LocalUploader{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.Named("upload"),
	}
}

// Upload copies the local file under root/<appID>/<fileName> and returns
// ("local", url).
func (u *LocalUploader) Upload(localPath, fileName, appID string) (string, string, error) {
	destDir := filepath.Join(u.root, appID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create upload directory")
	}

	destPath := filepath.Join(destDir, fileName)
	if err := copyFile(localPath, destPath); err != nil {
		return "", "", errors.Wrapf(err, "copy artifact to %s", destPath)
	}

	url := u.baseURL + "/" + appID + "/" + fileName
	u.logger.Debugw("Artifact stored locally",
		"path", destPath,
		"url", url,
	)
	return "local", url, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
