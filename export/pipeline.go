package export

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
	"github.com/svnlab/easy-file/upload"
)

// FileMeta is what a finished pipeline run hands back: where the artifact
// lives and what it is called.
type FileMeta struct {
	System   string
	URL      string
	FileName string
}

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	WorkDir          string        // scratch directory; empty means os.TempDir()
	EnableCompress   bool          // zip artifacts before upload
	MinCompressBytes int64         // skip compression below this size; 0 disables the check
	MaxAttempts      int           // bounded retry of recoverable generation errors
	RetryWait        time.Duration // base wait between attempts, grows per attempt
}

// Pipeline turns a job spec plus request params into an uploaded artifact.
// Temporary local files are exclusively owned by one run and removed on
// every exit path.
type Pipeline struct {
	cfg      PipelineConfig
	uploader upload.Uploader
	logger   *zap.SugaredLogger
}

// NewPipeline creates a generation pipeline.
func NewPipeline(cfg PipelineConfig, uploader upload.Uploader, logger *zap.SugaredLogger) *Pipeline {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pipeline{
		cfg:      cfg,
		uploader: uploader,
		logger:   logger.Named("pipeline"),
	}
}

// HandleWithRetry runs generation plus upload with a bounded retry.
// Only errors marked recoverable are retried; the wait between attempts
// grows linearly. Non-recoverable errors propagate after one attempt.
func (p *Pipeline) HandleWithRetry(ctx context.Context, spec *JobSpec, record *Record, info *RequestInfo, reporter *ProgressReporter) (*FileMeta, error) {
	var attemptErrs []string
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		meta, err := p.runOnce(ctx, spec, record, info, reporter)
		if err == nil {
			return meta, nil
		}
		attemptErrs = append(attemptErrs, err.Error())

		if !IsRecoverable(err) {
			return nil, errors.Wrapf(err, "attempt %d", attempt)
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		wait := p.cfg.RetryWait * time.Duration(attempt)
		p.logger.Warnw("Recoverable generation error, retrying",
			"register_id", record.ID,
			"task_code", spec.Code,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "generation cancelled between attempts")
		}
	}
	return nil, errors.New(JoinErrorMessages(attemptErrs))
}

// runOnce performs a single generate, compress, upload cycle. All local
// files created by the run are deleted before it returns.
func (p *Pipeline) runOnce(ctx context.Context, spec *JobSpec, record *Record, info *RequestInfo, reporter *ProgressReporter) (*FileMeta, error) {
	suffix := info.FileSuffix
	if suffix == "" {
		suffix = spec.FileSuffix
	}

	localPath := filepath.Join(p.cfg.WorkDir, MachineFileName(spec.Code, suffix))
	uploadPath := localPath
	compressed := false

	defer func() {
		removeIfExists(localPath, p.logger)
		if uploadPath != localPath {
			removeIfExists(uploadPath, p.logger)
		}
	}()

	if err := p.generate(ctx, spec, localPath, info.Params, reporter); err != nil {
		return nil, err
	}

	if zipPath, ok := p.maybeCompress(localPath, suffix); ok {
		uploadPath = zipPath
		compressed = true
	}

	humanName := HumanFileName(spec, suffix, compressed)
	system, url, err := p.uploader.Upload(uploadPath, humanName, record.AppID)
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s", humanName)
	}

	return &FileMeta{System: system, URL: url, FileName: humanName}, nil
}

// generate streams the export function's output into localPath. A failure
// at any point leaves no partial file behind; local I/O faults are marked
// recoverable for the retry layer.
func (p *Pipeline) generate(ctx context.Context, spec *JobSpec, localPath string, params map[string]any, reporter *ProgressReporter) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.Mark(errors.Wrap(err, "create export directory"), ErrGenerateRecoverable)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create export file"), ErrGenerateRecoverable)
	}

	w := &fileProgressWriter{file: f, reporter: reporter}
	exportErr := spec.Export(ctx, w, params)
	closeErr := f.Close()

	if exportErr != nil {
		removeIfExists(localPath, p.logger)
		return errors.Wrap(exportErr, "export function failed")
	}
	if closeErr != nil {
		removeIfExists(localPath, p.logger)
		return errors.Mark(errors.Wrap(closeErr, "close export file"), ErrGenerateRecoverable)
	}
	return nil
}

// maybeCompress zips the generated file when compression is enabled, the
// file is big enough, and it is not already an archive. Compression
// failure is non-fatal; the original file is uploaded instead.
func (p *Pipeline) maybeCompress(localPath, suffix string) (string, bool) {
	if !p.cfg.EnableCompress {
		return "", false
	}
	if isCompressedSuffix(suffix) {
		return "", false
	}
	if p.cfg.MinCompressBytes > 0 {
		fi, err := os.Stat(localPath)
		if err != nil || fi.Size() < p.cfg.MinCompressBytes {
			return "", false
		}
	}

	zipPath := localPath + ".zip"
	if err := zipFile(localPath, zipPath); err != nil {
		p.logger.Warnw("Compression failed, uploading raw file",
			"path", localPath,
			"error", err,
		)
		removeIfExists(zipPath, p.logger)
		return "", false
	}
	return zipPath, true
}

// zipFile writes src as the single entry of a new zip archive at dst.
func zipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open file for compression")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create archive")
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entry, err := zw.Create(filepath.Base(src))
	if err != nil {
		return errors.Wrap(err, "create archive entry")
	}
	if _, err := io.Copy(entry, in); err != nil {
		return errors.Wrap(err, "write archive entry")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "finalize archive")
	}
	return nil
}

func removeIfExists(path string, logger *zap.SugaredLogger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Temp file cleanup failed",
			"path", path,
			"error", err,
		)
	}
}

// fileProgressWriter streams export output to disk and forwards progress
// reports to the side channel.
type fileProgressWriter struct {
	file     *os.File
	reporter *ProgressReporter
}

func (w *fileProgressWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *fileProgressWriter) ReportProgress(percent int) {
	if w.reporter != nil {
		w.reporter.Report(percent)
	}
}

// MachineFileName builds the on-disk name: task code, millisecond
// timestamp, normalized suffix.
func MachineFileName(code, suffix string) string {
	return code + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + NormalizeSuffix(suffix)
}

// HumanFileName builds the uploaded artifact's name from the job
// description, falling back to the code, with the archive suffix appended
// when the file was compressed.
func HumanFileName(spec *JobSpec, suffix string, compressed bool) string {
	base := spec.Description
	if base == "" {
		base = spec.Code
	}
	name := base + NormalizeSuffix(suffix)
	if compressed {
		name += ".zip"
	}
	return name
}

// NormalizeSuffix prefixes the separator when missing. Empty stays empty.
func NormalizeSuffix(suffix string) string {
	if suffix == "" {
		return ""
	}
	if !strings.HasPrefix(suffix, ".") {
		return "." + suffix
	}
	return suffix
}

func isCompressedSuffix(suffix string) bool {
	switch strings.ToLower(strings.TrimPrefix(suffix, ".")) {
	case "zip", "gz", "tgz", "rar", "7z":
		return true
	default:
		return false
	}
}
