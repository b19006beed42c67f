package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/config"
	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/internal/store"
)

// exportHeader is the fixed spreadsheet column set, stable so downstream
// consumers can rely on position.
var exportHeader = []string{
	"id", "raw_id", "data_contato", "hora_contato", "nome", "telefone",
	"bairro", "referencia_local", "tipo_demanda", "descricao_curta",
	"prioridade_percebida", "consentimento_comunicacao", "fonte",
	"confianca_global", "revisado", "extraction_status",
	"texto_original", "agente", "capturado_em", "latitude", "longitude",
}

// Exporter regenerates the XLSX and CSV artifacts from the full joined
// dataset. Output files have fixed names and are overwritten on every run.
type Exporter struct {
	store store.Store
	cfg   config.ExportConfig
}

func NewExporter(s store.Store, cfg config.ExportConfig) *Exporter {
	return &Exporter{store: s, cfg: cfg}
}

// ExportAll writes both artifacts. The summary reports which succeeded; the
// error carries the first failure (or the empty-dataset rejection).
func (e *Exporter) ExportAll(ctx context.Context) (model.ExportSummary, error) {
	summary := model.ExportSummary{}

	records, err := e.store.ListJoined(ctx, 0)
	if err != nil {
		return summary, eris.Wrap(err, "export: load records")
	}
	if len(records) == 0 {
		return summary, eris.New("export: no records to export")
	}

	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return summary, eris.Wrap(err, "export: create output dir")
	}

	var firstErr error
	if err := e.writeXLSX(records); err != nil {
		zap.L().Error("export: xlsx failed", zap.Error(err))
		firstErr = err
	} else {
		summary.XLSX = true
	}
	if err := e.writeCSV(records); err != nil {
		zap.L().Error("export: csv failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	} else {
		summary.CSV = true
	}

	zap.L().Info("export: done",
		zap.Int("records", len(records)),
		zap.Bool("xlsx", summary.XLSX),
		zap.Bool("csv", summary.CSV),
	)
	return summary, firstErr
}

func (e *Exporter) writeXLSX(records []model.JoinedRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Dados")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportHeader {
		header.AddCell().Value = col
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, v := range exportRow(rec) {
			row.AddCell().Value = v
		}
	}

	path := filepath.Join(e.cfg.Dir, e.cfg.XLSXName)
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func (e *Exporter) writeCSV(records []model.JoinedRecord) error {
	path := filepath.Join(e.cfg.Dir, e.cfg.CSVName)
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(exportHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, rec := range records {
		if err := w.Write(exportRow(rec)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrapf(file.Close(), "export: close %s", path)
}

// exportRow flattens one joined record into the export column order.
func exportRow(rec model.JoinedRecord) []string {
	return []string{
		fmt.Sprintf("%d", rec.ID),
		fmt.Sprintf("%d", rec.RawID),
		strOrEmpty(rec.ContactDate),
		strOrEmpty(rec.ContactTime),
		strOrEmpty(rec.Name),
		strOrEmpty(rec.Phone),
		strOrEmpty(rec.Neighborhood),
		strOrEmpty(rec.LocationRef),
		strOrEmpty(rec.DemandType),
		strOrEmpty(rec.ShortDescription),
		strOrEmpty(rec.Priority),
		boolOrEmpty(rec.Consent),
		rec.Source,
		floatOrEmpty(rec.GlobalConfidence),
		fmt.Sprintf("%t", rec.Reviewed),
		string(rec.Status),
		rec.Raw.Text,
		rec.Raw.AgentID,
		rec.Raw.CapturedAt.UTC().Format(time.RFC3339),
		coordOrEmpty(rec.Raw.Latitude),
		coordOrEmpty(rec.Raw.Longitude),
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolOrEmpty(b *bool) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%t", *b)
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *f)
}

// coordOrEmpty keeps full coordinate precision, unlike confidence values.
func coordOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
