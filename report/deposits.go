// Package report exports the deposit ledger of an engine as CSV and parquet
// files for reconciliation outside the node.
package report

import (
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Source is the read-only engine surface the exporter needs.
type Source interface {
	Address() common.Address
	Sales() ([]string, error)
	Accumulated(sale string) (*big.Int, error)
	Participants(sale string) ([]common.Address, error)
}

// Row is one recorded deposit. The ledger keeps one record per participant and
// sale, so sale level figures repeat on every row of the sale.
type Row struct {
	Engine           string
	Sale             string
	Participant      string
	SaleTotal        string
	SaleParticipants int
}

// Files describes one export run.
type Files struct {
	CSVPath     string `json:"csv"`
	ParquetPath string `json:"parquet"`
	Rows        int    `json:"rows"`
}

// Collect walks every sale recorded by src.
func Collect(src Source) ([]Row, error) {
	sales, err := src.Sales()
	if err != nil {
		return nil, fmt.Errorf("report: list sales: %w", err)
	}
	engine := src.Address().Hex()
	var rows []Row
	for _, sale := range sales {
		total, err := src.Accumulated(sale)
		if err != nil {
			return nil, fmt.Errorf("report: sale %q total: %w", sale, err)
		}
		participants, err := src.Participants(sale)
		if err != nil {
			return nil, fmt.Errorf("report: sale %q participants: %w", sale, err)
		}
		for _, p := range participants {
			rows = append(rows, Row{
				Engine:           engine,
				Sale:             sale,
				Participant:      p.Hex(),
				SaleTotal:        total.String(),
				SaleParticipants: len(participants),
			})
		}
	}
	return rows, nil
}

// Export writes the ledger of src into dir as a CSV and a parquet file sharing
// a timestamped base name.
func Export(dir string, src Source, now time.Time) (*Files, error) {
	rows, err := Collect(src)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}
	base := fmt.Sprintf("deposits-%s-%s", src.Address().Hex(), now.UTC().Format("20060102T150405Z"))
	files := &Files{
		CSVPath:     filepath.Join(dir, base+".csv"),
		ParquetPath: filepath.Join(dir, base+".parquet"),
		Rows:        len(rows),
	}
	if err := WriteCSV(files.CSVPath, rows); err != nil {
		return nil, err
	}
	if err := WriteParquet(files.ParquetPath, rows); err != nil {
		return nil, err
	}
	return files, nil
}

var csvHeader = []string{"engine", "sale", "participant", "sale_total", "sale_participants"}

func WriteCSV(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Engine, row.Sale, row.Participant, row.SaleTotal, strconv.Itoa(row.SaleParticipants)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return file.Close()
}

type parquetRow struct {
	Engine           string `parquet:"name=engine, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sale             string `parquet:"name=sale, type=BYTE_ARRAY, convertedtype=UTF8"`
	Participant      string `parquet:"name=participant, type=BYTE_ARRAY, convertedtype=UTF8"`
	SaleTotal        string `parquet:"name=sale_total, type=BYTE_ARRAY, convertedtype=UTF8"`
	SaleParticipants int32  `parquet:"name=sale_participants, type=INT32"`
}

// WriteParquet writes rows with snappy compression. Amounts stay decimal
// strings since they may exceed 64 bits.
func WriteParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("report: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		pr := &parquetRow{
			Engine:           row.Engine,
			Sale:             row.Sale,
			Participant:      row.Participant,
			SaleTotal:        row.SaleTotal,
			SaleParticipants: int32(row.SaleParticipants),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("report: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("report: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close parquet file: %w", err)
	}
	return nil
}
