package transformations

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/sheetpipe/internal/domain"
)

const dateNumberFormat = "yyyy-mm-dd"

// OutputPath is the location of the corrected workbook for a task.
func OutputPath(dir string, taskID uuid.UUID) string {
	return filepath.Join(dir, taskID.String()+".xlsx")
}

// StagedOutput is a fully written workbook that is not yet visible under its final name.
// A promoted output keeps the file it replaced until Commit or Revert.
type StagedOutput struct {
	tempPath   string
	finalPath  string
	backupPath string
	promoted   bool
}

// FinalPath is where Promote moves the file.
func (s *StagedOutput) FinalPath() string {
	return s.finalPath
}

// Promote moves any existing output aside and renames the staged file to its final name.
func (s *StagedOutput) Promote() error {
	if s.promoted {
		return nil
	}
	backupPath := s.tempPath + ".prev"
	hasBackup := true
	if err := os.Rename(s.finalPath, backupPath); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "move previous output aside")
		}
		hasBackup = false
	}
	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		if hasBackup {
			if restoreErr := os.Rename(backupPath, s.finalPath); restoreErr != nil {
				err = errors.CombineErrors(err, errors.Wrap(restoreErr, "restore previous output"))
			}
		}
		return errors.Wrap(err, "promote output file")
	}
	if hasBackup {
		s.backupPath = backupPath
	}
	s.promoted = true
	return nil
}

// Commit drops the output replaced by Promote. It is a no-op before Promote.
func (s *StagedOutput) Commit() error {
	if !s.promoted || s.backupPath == "" {
		return nil
	}
	if err := os.Remove(s.backupPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove previous output")
	}
	s.backupPath = ""
	return nil
}

// Discard removes the staged file if it was never promoted.
func (s *StagedOutput) Discard() error {
	if s.promoted {
		return nil
	}
	if err := os.Remove(s.tempPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "discard staged output")
	}
	return nil
}

// Revert undoes Promote, putting back the output it replaced if there was one.
func (s *StagedOutput) Revert() error {
	if !s.promoted {
		return s.Discard()
	}
	if s.backupPath != "" {
		if err := os.Rename(s.backupPath, s.finalPath); err != nil {
			return errors.Wrap(err, "restore previous output")
		}
		s.backupPath = ""
	} else if err := os.Remove(s.finalPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "revert promoted output")
	}
	s.promoted = false
	return nil
}

// Stage writes series to a temp file next to its final location.
func (t *Transformer) Stage(taskID uuid.UUID, series domain.SalesSeries) (*StagedOutput, error) {
	if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "ensure output directory")
	}

	tempFile, err := os.CreateTemp(t.outputDir, fmt.Sprintf(".%s-*.xlsx.tmp", taskID))
	if err != nil {
		return nil, errors.Wrap(err, "create temp output file")
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	workbook, err := buildWorkbook(series)
	if err != nil {
		return nil, err
	}
	defer func() { _ = workbook.Close() }()

	if err := workbook.Write(tempFile); err != nil {
		return nil, errors.Wrap(err, "write output workbook")
	}
	if err := tempFile.Sync(); err != nil {
		return nil, errors.Wrap(err, "sync output file")
	}
	if err := tempFile.Close(); err != nil {
		return nil, errors.Wrap(err, "close output file")
	}

	cleanup = false
	return &StagedOutput{
		tempPath:  tempPath,
		finalPath: OutputPath(t.outputDir, taskID),
	}, nil
}

func buildWorkbook(series domain.SalesSeries) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	header := []any{series.DateColumn, series.SalesColumn}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "write header row")
	}

	format := dateNumberFormat
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "create date style")
	}

	for i, point := range series.Points {
		rowNumber := i + 2
		dateCell, _ := excelize.CoordinatesToCellName(1, rowNumber)
		if err := f.SetCellValue(sheet, dateCell, point.Date); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "write %s", dateCell)
		}
		if err := f.SetCellStyle(sheet, dateCell, dateCell, dateStyle); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "style %s", dateCell)
		}
		if point.Sales == nil {
			continue
		}
		salesCell, _ := excelize.CoordinatesToCellName(2, rowNumber)
		if err := f.SetCellValue(sheet, salesCell, *point.Sales); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "write %s", salesCell)
		}
	}
	return f, nil
}
