package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/xuri/excelize/v2"
)

// ExportSheet 导出文件中的工作表名
const ExportSheet = "Harvest Cards"

// exportHeaders 导出列
var exportHeaders = []interface{}{
	"Card ID", "Crop", "Variety", "Quantity", "Unit", "Quality Grade", "Organic",
	"Certification", "Farmer", "Location", "Planting Date", "Harvest Date",
	"Verification Status", "Verify URL", "Created At",
	"Farm Size (acres)", "Soil Type", "Irrigation", "Water Source", "Carbon Footprint (kg CO2)",
	"Transportation", "Market Destination", "Price per kg", "Total Revenue", "Production Cost", "Profit Margin (%)",
}

// Export 将用户的有效收获卡导出为 XLSX
func (s *traceabilityService) Export(ctx context.Context, ownerID string, filter *repository.HarvestCardFilter, w io.Writer) error {
	ctx, span := tracer.Start(ctx, "TraceabilityService.Export")
	defer span.End()

	cards, err := s.List(ctx, ownerID, filter)
	if err != nil {
		return s.fail(span, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return s.fail(span, fmt.Errorf("failed to create sheet: %w", err))
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &exportHeaders); err != nil {
		return s.fail(span, fmt.Errorf("failed to write header: %w", err))
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(ExportSheet, 1, 1, style)
	}

	for i, card := range cards {
		planting := ""
		if card.PlantingDate != nil {
			planting = card.PlantingDate.Format("2006-01-02")
		}
		organic := "No"
		if card.IsOrganic {
			organic = "Yes"
		}
		row := []interface{}{
			card.CardID, card.CropName, card.Variety, card.Quantity, card.Unit, card.QualityGrade, organic,
			card.CertificationNumber, card.FarmerName, card.FarmLocation, planting, card.HarvestDate.Format("2006-01-02"),
			card.VerificationStatus, s.codec.VerifyURL(card.CardID), card.CreatedAt.Format("2006-01-02 15:04:05"),
			card.FarmSize, card.SoilType, card.IrrigationMethod, card.WaterSource, card.CarbonFootprint,
			card.TransportationMethod, card.MarketDestination, card.PricePerKg, card.TotalRevenue, card.ProductionCost, card.ProfitMargin,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return s.fail(span, err)
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return s.fail(span, fmt.Errorf("failed to write row %d: %w", i+2, err))
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	_ = f.SetColWidth(ExportSheet, "A", lastCol, 18)

	if err := f.Write(w); err != nil {
		return s.fail(span, fmt.Errorf("failed to write xlsx: %w", err))
	}

	s.logger.WithField("owner_id", strings.TrimSpace(ownerID)).WithField("rows", len(cards)).Info("Harvest cards exported")
	return nil
}
