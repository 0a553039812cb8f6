package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"
)

// OfficeConverter handles one office document family (word processing,
// spreadsheets or presentations) through a pool of leased automation
// instances
type OfficeConverter struct {
	name  string
	exts  []string
	pool  *AutomationPool
	probe func() bool
}

func NewOfficeConverter(name string, exts []string, pool *AutomationPool, probe func() bool) *OfficeConverter {
	return &OfficeConverter{name: name, exts: exts, pool: pool, probe: probe}
}

func (o *OfficeConverter) Name() string         { return o.name }
func (o *OfficeConverter) Extensions() []string { return o.exts }

func (o *OfficeConverter) Available() bool {
	return o.probe()
}

func (o *OfficeConverter) Convert(ctx context.Context, src, dst string) error {
	h, err := o.pool.Lease(ctx)
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if ok {
			o.pool.Release(h)
		} else {
			// The instance saw a failure mid-use, never lease it again
			o.pool.Retire(h)
		}
	}()

	if err := h.Open(src); err != nil {
		return err
	}
	if err := h.SaveAs(dst, strings.TrimPrefix(filepath.Ext(dst), ".")); err != nil {
		return err
	}
	if err := h.Close(); err != nil {
		return err
	}

	ok = true
	return nil
}

// NewOfficeFamilies wires the three office document families over one
// shared automation pool
func NewOfficeFamilies(pool *AutomationPool, probe func() bool) []Converter {
	return []Converter{
		NewOfficeConverter("office-document", []string{"doc", "docx", "rtf", "txt", "odt"}, pool, probe),
		NewOfficeConverter("office-spreadsheet", []string{"xls", "xlsx", "csv", "ods"}, pool, probe),
		NewOfficeConverter("office-presentation", []string{"ppt", "pptx", "odp"}, pool, probe),
	}
}

// binaryAutomation adapts a headless conversion binary to the Automation
// capability interface so it can sit behind the same pools the native
// adapters do. Open just records the source; the real work happens in
// SaveAs.
type binaryAutomation struct {
	binary  string
	gate    *semaphore.Weighted
	current string
}

// NewBinaryAutomationFactory returns a factory spawning headless-binary
// backed instances, or nil when the binary is not installed
func NewBinaryAutomationFactory(binary string, gate *semaphore.Weighted) AutomationFactory {
	if _, err := exec.LookPath(binary); err != nil {
		return nil
	}
	if gate == nil {
		gate = newSubprocessGate()
	}
	return func() (Automation, error) {
		return &binaryAutomation{binary: binary, gate: gate}, nil
	}
}

func (b *binaryAutomation) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("source file is not readable, %w", err)
	}
	b.current = path
	return nil
}

func (b *binaryAutomation) SaveAs(path, format string) error {
	if b.current == "" {
		return fmt.Errorf("no document is open")
	}

	// Scratch next to the destination keeps the final rename on one
	// filesystem
	outDir, err := os.MkdirTemp(filepath.Dir(path), "convert-*")
	if err != nil {
		return fmt.Errorf("failed to create conversion scratch dir, %w", err)
	}
	defer os.RemoveAll(outDir)

	err = runProcess(context.Background(), b.gate, DefaultProcessTimeout, b.binary,
		"--headless", "--convert-to", format, "--outdir", outDir, b.current)
	if err != nil {
		return err
	}

	// The binary names its output after the source file
	base := filepath.Base(b.current)
	produced := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+"."+format)
	if err := os.Rename(produced, path); err != nil {
		return fmt.Errorf("failed to move converted file, %w", err)
	}

	return nil
}

func (b *binaryAutomation) Close() error {
	b.current = ""
	return nil
}

func (b *binaryAutomation) Quit() error {
	return nil
}
