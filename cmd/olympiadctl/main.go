package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"zero-olympiad/config"
	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// writeWorkbook writes the round's results to path. A failed close is
// reported, since it can mean the workbook was truncated.
func writeWorkbook(ctx context.Context, export *services.ExportService, round int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteRoundWorkbook(ctx, round, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "olympiadctl",
		Usage: "Operator tasks for the Zero Olympiad backend",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create or update tables and seed default settings",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					db, err := openDB(cfg)
					if err != nil {
						return err
					}
					if err := models.AutoMigrate(db); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
					if err := services.NewSettingsService(db, cfg.Catalog).EnsureDefaults(c.Context); err != nil {
						return err
					}
					log.Println("✅ migration complete")
					return nil
				},
			},
			{
				Name:  "promote",
				Usage: "Promote every category out of a round",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "round", Usage: "round to promote from", Required: true},
					&cli.StringFlag{Name: "policy", Value: services.PolicyTopK, Usage: "top_k or threshold"},
					&cli.IntFlag{Name: "k", Usage: "participants per category for top_k"},
					&cli.Float64Flag{Name: "pass-mark", Usage: "minimum score for threshold"},
					&cli.IntFlag{Name: "limit", Usage: "optional cap per category"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					db, err := openDB(cfg)
					if err != nil {
						return err
					}
					svc := services.NewPromotionService(db, services.NewRoundStore(db), cfg.Catalog, services.Metrics())
					report, err := svc.Promote(c.Context, services.PromotionRequest{
						FromRound: c.Int("round"),
						Policy: services.Policy{
							Kind:     c.String("policy"),
							K:        c.Int("k"),
							PassMark: c.Float64("pass-mark"),
							Limit:    c.Int("limit"),
						},
					})
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(report); err != nil {
						return err
					}
					if report.TotalFailed > 0 {
						return cli.Exit(fmt.Sprintf("%d promotions failed, re-run to retry", report.TotalFailed), 2)
					}
					return nil
				},
			},
			{
				Name:  "export",
				Usage: "Write a round's ranked results to an XLSX workbook",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "round", Value: 1},
					&cli.StringFlag{Name: "out", Value: "results.xlsx"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					db, err := openDB(cfg)
					if err != nil {
						return err
					}
					settings := services.NewSettingsService(db, cfg.Catalog)
					export := services.NewExportService(services.NewLeaderboardService(db, cfg.Catalog, settings), cfg.Catalog)

					if err := writeWorkbook(c.Context, export, c.Int("round"), c.String("out")); err != nil {
						return err
					}
					log.Printf("✅ wrote %s", c.String("out"))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

