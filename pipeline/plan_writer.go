package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	segmentpower "github.com/lucasjlepore/segment-power"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

var planHeader = []string{
	"improvement_minutes", "target_minutes", "target_watts", "watt_increase", "watts_per_kg",
}

type planParquetRow struct {
	ImprovementMinutes float64 `parquet:"name=improvement_minutes, type=DOUBLE"`
	TargetMinutes      float64 `parquet:"name=target_minutes, type=DOUBLE"`
	TargetWatts        float64 `parquet:"name=target_watts, type=DOUBLE"`
	WattIncrease       float64 `parquet:"name=watt_increase, type=DOUBLE"`
	WattsPerKG         float64 `parquet:"name=watts_per_kg, type=DOUBLE"`
}

func writePlanCSV(path string, rows []segmentpower.PlanRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodePlanCSV(f, rows)
}

func encodePlanCSV(out io.Writer, rows []segmentpower.PlanRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(planHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			formatFloat(r.ImprovementMinutes),
			formatFloat(r.TargetMinutes),
			formatFloat(r.TargetWatts),
			formatFloat(r.WattIncrease),
			formatFloat(r.WattsPerKG),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writePlanParquet(path string, rows []segmentpower.PlanRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := encodePlanParquet(fw, rows); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func marshalPlanParquet(rows []segmentpower.PlanRow) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := encodePlanParquet(fw, rows); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func encodePlanParquet(fw source.ParquetFile, rows []segmentpower.PlanRow) error {
	pw, err := writer.NewParquetWriter(fw, new(planParquetRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		row := planParquetRow{
			ImprovementMinutes: r.ImprovementMinutes,
			TargetMinutes:      r.TargetMinutes,
			TargetWatts:        r.TargetWatts,
			WattIncrease:       r.WattIncrease,
			WattsPerKG:         r.WattsPerKG,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
