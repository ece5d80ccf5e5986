package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/parsers"
)

// InvoiceGenerator generates invoice extracts with planted duplicates and
// reversal pairs.
type InvoiceGenerator struct {
	Count          int
	StartDate      time.Time
	EndDate        time.Time
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	DuplicateRatio float64
	ReversalRatio  float64
	rng            *rand.Rand
}

// InvoiceTemplate represents one generated row
type InvoiceTemplate struct {
	ID            string
	InvoiceNumber string
	SupplierName  string
	InvoiceDate   time.Time
	Amount        decimal.Decimal
	DebitCredit   string
	InvoiceType   string
	CompanyCode   string
	Currency      string
	CurrentData   bool
}

// Planted counts what was injected so a run can be checked against it.
type Planted struct {
	Exact     int
	Noisy     int
	Typos     int
	Reversals int
}

var suppliers = []string{
	"Acme GmbH", "Globex Corporation", "Initech Ltd", "Umbrella AG", "Stark Industries Inc",
	"Wayne Enterprises LLC", "Müller & Söhne KG", "Soylent S.A.", "Hooli Services BV", "Vandelay Imports",
	"Jane Doe", "John Q Smith", "Tyrell Systems Oy", "Cyberdyne SARL", "Wonka Holding SE",
}

func main() {
	var (
		output         = flag.String("output", "generated_invoices.csv", "Output CSV file path")
		scenarios      = flag.String("scenarios", "", "also write a matching scenario file (.yaml, .toml, .json)")
		count          = flag.Int("count", 1000, "Number of base invoices to generate")
		startDate      = flag.String("start-date", "2024-01-01", "Start date (YYYY-MM-DD)")
		endDate        = flag.String("end-date", "2024-12-31", "End date (YYYY-MM-DD)")
		minAmount      = flag.Float64("min-amount", 10.00, "Minimum invoice amount")
		maxAmount      = flag.Float64("max-amount", 25000.00, "Maximum invoice amount")
		duplicateRatio = flag.Float64("duplicate-ratio", 0.05, "Share of invoices that get a planted duplicate")
		reversalRatio  = flag.Float64("reversal-ratio", 0.02, "Share of invoices that get a reversal document")
		seed           = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	if !end.After(start) {
		log.Fatalf("End date must be after start date")
	}

	generator := &InvoiceGenerator{
		Count:          *count,
		StartDate:      start,
		EndDate:        end,
		MinAmount:      decimal.NewFromFloat(*minAmount),
		MaxAmount:      decimal.NewFromFloat(*maxAmount),
		DuplicateRatio: *duplicateRatio,
		ReversalRatio:  *reversalRatio,
		rng:            rand.New(rand.NewSource(*seed)),
	}

	invoices, planted := generator.Generate()

	if err := WriteToCSV(*output, invoices); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}

	if *scenarios != "" {
		if err := parsers.SaveScenarioFile(*scenarios, DefaultScenarios()); err != nil {
			log.Fatalf("Failed to write scenarios: %v", err)
		}
		fmt.Printf("Scenarios written to %s\n", *scenarios)
	}

	fmt.Printf("Generated %d rows in %s\n", len(invoices), *output)
	fmt.Printf("Planted: %d exact, %d noisy-number, %d typo duplicates; %d reversals\n",
		planted.Exact, planted.Noisy, planted.Typos, planted.Reversals)
	fmt.Printf("Seed used: %d\n", *seed)
}

// Generate creates the base invoices and appends planted duplicates and
// reversals, then shuffles the rows.
func (g *InvoiceGenerator) Generate() ([]InvoiceTemplate, Planted) {
	var planted Planted
	base := make([]InvoiceTemplate, g.Count)
	span := g.EndDate.Sub(g.StartDate)

	for i := range base {
		amountRange := g.MaxAmount.Sub(g.MinAmount)
		amount := decimal.NewFromFloat(g.rng.Float64()).Mul(amountRange).Add(g.MinAmount).Round(2)

		base[i] = InvoiceTemplate{
			InvoiceNumber: fmt.Sprintf("INV-%06d", 100000+g.rng.Intn(900000)),
			SupplierName:  suppliers[g.rng.Intn(len(suppliers))],
			InvoiceDate:   g.StartDate.Add(time.Duration(g.rng.Int63n(int64(span)))).Truncate(24 * time.Hour),
			Amount:        amount,
			DebitCredit:   "S",
			InvoiceType:   "KR",
			CompanyCode:   fmt.Sprintf("%04d", 1000*(1+g.rng.Intn(3))),
			Currency:      "EUR",
			CurrentData:   g.rng.Float64() < 0.8,
		}
	}

	rows := append([]InvoiceTemplate(nil), base...)
	for _, inv := range base {
		if g.rng.Float64() < g.DuplicateRatio {
			dup := inv
			dup.CurrentData = true
			switch g.rng.Intn(3) {
			case 0:
				planted.Exact++
			case 1:
				dup.InvoiceNumber = noisyVariant(inv.InvoiceNumber, g.rng)
				planted.Noisy++
			default:
				dup.InvoiceNumber = typoVariant(inv.InvoiceNumber, g.rng)
				planted.Typos++
			}
			rows = append(rows, dup)
		}
		if g.rng.Float64() < g.ReversalRatio {
			rev := inv
			rev.DebitCredit = "H"
			rev.Amount = inv.Amount.Neg()
			rev.InvoiceNumber = inv.InvoiceNumber + "-R"
			rows = append(rows, rev)
			planted.Reversals++
		}
	}

	g.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	for i := range rows {
		rows[i].ID = fmt.Sprintf("D%07d", i+1)
	}

	return rows, planted
}

// noisyVariant adds formatting noise that invoice number normalisation
// removes again.
func noisyVariant(number string, rng *rand.Rand) string {
	switch rng.Intn(4) {
	case 0:
		return strings.ReplaceAll(number, "-", "")
	case 1:
		return "No. " + number
	case 2:
		return number + " (COPY)"
	default:
		return strings.ToLower(number) + "/1"
	}
}

// typoVariant swaps two adjacent characters away from the last two digits.
func typoVariant(number string, rng *rand.Rand) string {
	r := []rune(number)
	if len(r) < 6 {
		return number + "A"
	}
	i := 4 + rng.Intn(len(r)-6)
	r[i], r[i+1] = r[i+1], r[i]
	return string(r)
}

// DefaultScenarios returns scenarios that find the planted duplicates.
func DefaultScenarios() []models.Scenario {
	return []models.Scenario{
		{
			ScenarioID:      1,
			Name:            "supplier-date-amount",
			GroupingColumns: []string{models.ColumnSupplierName, models.ColumnInvoiceDate, models.ColumnInvoiceAmountAbs},
		},
		{
			ScenarioID:      2,
			Name:            "supplier-amount",
			GroupingColumns: []string{models.ColumnSupplierName, models.ColumnInvoiceAmountAbs},
			ScoreThreshold:  95,
		},
		{
			ScenarioID:       3,
			Name:             "fuzzy-supplier-date-amount",
			GroupingColumns:  []string{models.ColumnSupplierName, models.ColumnInvoiceDate, models.ColumnInvoiceAmountAbs},
			SupplierMatching: models.SupplierMatchFuzzy,
		},
	}
}

// WriteToCSV writes invoices with the standard extract header
func WriteToCSV(filename string, invoices []InvoiceTemplate) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"id", "invoice_number", "supplier_name", "invoice_date", "invoice_amount",
		"debit_credit_indicator", "invoice_type", "company_code", "currency", "is_current_data",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, inv := range invoices {
		record := []string{
			inv.ID,
			inv.InvoiceNumber,
			inv.SupplierName,
			inv.InvoiceDate.Format("2006-01-02"),
			inv.Amount.StringFixed(2),
			inv.DebitCredit,
			inv.InvoiceType,
			inv.CompanyCode,
			inv.Currency,
			fmt.Sprintf("%t", inv.CurrentData),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
