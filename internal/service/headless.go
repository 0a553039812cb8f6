package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// HeadlessConverter is the fallback document family: it shells out to a
// headless conversion binary directly, without the automation pool. It
// covers every office extension so it can stand in for any of the office
// families when their backend is missing.
type HeadlessConverter struct {
	Binary  string
	Timeout time.Duration

	gate *semaphore.Weighted
}

func NewHeadlessConverter(binary string) *HeadlessConverter {
	return &HeadlessConverter{
		Binary:  binary,
		Timeout: DefaultProcessTimeout,
		gate:    newSubprocessGate(),
	}
}

func (h *HeadlessConverter) Name() string { return "headless" }

func (h *HeadlessConverter) Extensions() []string {
	return []string{"doc", "docx", "rtf", "txt", "odt", "xls", "xlsx", "csv", "ods", "ppt", "pptx", "odp"}
}

func (h *HeadlessConverter) Available() bool {
	_, err := exec.LookPath(h.Binary)
	return err == nil
}

func (h *HeadlessConverter) Convert(ctx context.Context, src, dst string) error {
	format := strings.TrimPrefix(filepath.Ext(dst), ".")

	// Scratch next to the destination keeps the final rename on one
	// filesystem
	outDir, err := os.MkdirTemp(filepath.Dir(dst), "convert-*")
	if err != nil {
		return fmt.Errorf("failed to create conversion scratch dir, %w", err)
	}
	defer os.RemoveAll(outDir)

	err = runProcess(ctx, h.gate, h.Timeout, h.Binary,
		"--headless", "--convert-to", format, "--outdir", outDir, src)
	if err != nil {
		return err
	}

	base := filepath.Base(src)
	produced := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+"."+format)
	if err := os.Rename(produced, dst); err != nil {
		return fmt.Errorf("failed to move converted file, %w", err)
	}

	return nil
}
