package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

var csvHeader = []string{
	"seq", "id", "type", "caller", "borrower", "loan_id", "amount", "collateral",
	"interest", "param", "value", "height", "created_at",
}

type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller     string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Borrower   string `parquet:"name=borrower, type=BYTE_ARRAY, convertedtype=UTF8"`
	LoanID     int64  `parquet:"name=loan_id, type=INT64"`
	Amount     string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collateral string `parquet:"name=collateral, type=BYTE_ARRAY, convertedtype=UTF8"`
	Interest   string `parquet:"name=interest, type=BYTE_ARRAY, convertedtype=UTF8"`
	Param      string `parquet:"name=param, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value      string `parquet:"name=value, type=BYTE_ARRAY, convertedtype=UTF8"`
	Height     int64  `parquet:"name=height, type=INT64"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportResult names the files written by Export.
type ExportResult struct {
	CSVPath     string
	ParquetPath string
	Rows        int
}

// Export writes every entry matching filter into dir as lending_events.csv
// and lending_events.parquet. filter.AfterSeq and filter.Limit are ignored.
func (j *Journal) Export(ctx context.Context, filter Filter, dir string) (ExportResult, error) {
	var all []Entry
	filter.AfterSeq = 0
	filter.Limit = maxListLimit
	for {
		page, err := j.List(ctx, filter)
		if err != nil {
			return ExportResult{}, err
		}
		all = append(all, page...)
		if len(page) < maxListLimit {
			break
		}
		filter.AfterSeq = page[len(page)-1].Seq
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ExportResult{}, fmt.Errorf("journal: create export dir: %w", err)
	}
	res := ExportResult{
		CSVPath:     filepath.Join(dir, "lending_events.csv"),
		ParquetPath: filepath.Join(dir, "lending_events.parquet"),
		Rows:        len(all),
	}
	if err := writeCSV(res.CSVPath, all); err != nil {
		return ExportResult{}, err
	}
	if err := writeParquet(res.ParquetPath, all); err != nil {
		return ExportResult{}, err
	}
	j.logger.Info("journal exported", "rows", res.Rows, "csv", res.CSVPath, "parquet", res.ParquetPath)
	return res, nil
}

func writeCSV(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("journal: write csv header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatUint(e.Seq, 10),
			e.ID.String(),
			e.Type,
			e.Caller,
			e.Borrower,
			strconv.FormatUint(e.LoanID, 10),
			e.Amount,
			e.Collateral,
			e.Interest,
			e.Param,
			e.Value,
			strconv.FormatUint(e.Height, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("journal: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("journal: flush csv: %w", err)
	}
	return nil
}

func writeParquet(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, e := range entries {
		row := &parquetRow{
			Seq:        int64(e.Seq),
			ID:         e.ID.String(),
			Type:       e.Type,
			Caller:     e.Caller,
			Borrower:   e.Borrower,
			LoanID:     int64(e.LoanID),
			Amount:     e.Amount,
			Collateral: e.Collateral,
			Interest:   e.Interest,
			Param:      e.Param,
			Value:      e.Value,
			Height:     int64(e.Height),
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("journal: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("journal: close parquet file: %w", err)
	}
	return nil
}
