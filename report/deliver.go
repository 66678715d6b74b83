package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/warp/duty-ledger/rollover"
)

const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is one rendered artifact of a report.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Files renders the text and workbook versions of the report.
func Files(r Report) ([]File, error) {
	book, err := XLSX(r)
	if err != nil {
		return nil, err
	}
	base := FileBase(r.Key)
	return []File{
		{Name: base + ".txt", ContentType: ContentTypeText, Data: []byte(Text(r))},
		{Name: base + ".xlsx", ContentType: ContentTypeXLSX, Data: book},
	}, nil
}

// Deliverer sends a finished report to one destination.
type Deliverer interface {
	Name() string
	Send(ctx context.Context, r Report) error
}

// =============================================================================
// DIRECTORY
// =============================================================================

// DirectoryDeliverer writes the report files into Dir, replacing any
// earlier files for the same month.
type DirectoryDeliverer struct {
	Dir string
}

func (d DirectoryDeliverer) Name() string { return "directory" }

func (d DirectoryDeliverer) Send(_ context.Context, r Report) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	files, err := Files(r)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(d.Dir, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher builds the report for a rollover run and hands it to every
// deliverer. One failing deliverer does not stop the others.
type Publisher struct {
	Names      NameResolver
	Deliverers []Deliverer
	Logger     *zap.Logger
}

var _ rollover.Reporter = (*Publisher)(nil)

func NewPublisher(names NameResolver, logger *zap.Logger, deliverers ...Deliverer) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{Names: names, Deliverers: deliverers, Logger: logger}
}

// Deliver implements rollover.Reporter.
func (p *Publisher) Deliver(ctx context.Context, run rollover.Run) error {
	rep := Build(ctx, run, p.Names)

	var errs []error
	for _, d := range p.Deliverers {
		if err := d.Send(ctx, rep); err != nil {
			p.Logger.Error("report delivery failed",
				zap.String("run_id", run.ID),
				zap.String("deliverer", d.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		p.Logger.Info("report delivered",
			zap.String("run_id", run.ID),
			zap.String("deliverer", d.Name()),
			zap.String("month", rep.Key.String()),
			zap.Int("rows", len(rep.Rows)))
	}
	return errors.Join(errs...)
}
