package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"

	"github.com/lewtec/anotador/annotation"
	"github.com/lewtec/anotador/internal/database"
	"github.com/lewtec/anotador/internal/media"
	"github.com/lewtec/anotador/internal/repository"
)

// Project is a loaded config with its database and media folder
type Project struct {
	Config       *annotation.Config
	DB           *sql.DB
	DatabasePath string
	MediaDir     string
	MediaFS      billy.Filesystem
}

// relativeTo resolves p against the folder of the config file
func relativeTo(configFile, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configFile), p)
}

func openProject(configFile string) (*Project, error) {
	config, err := annotation.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	mediaDir := relativeTo(configFile, config.MediaDir)
	if mediaDir == "" {
		mediaDir = filepath.Dir(configFile)
	}
	if stat, err := os.Stat(mediaDir); err != nil || !stat.IsDir() {
		return nil, fmt.Errorf("media directory does not exist: %s", mediaDir)
	}
	databasePath := relativeTo(configFile, config.Database)
	db, err := database.Open(databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Project{
		Config:       config,
		DB:           db,
		DatabasePath: databasePath,
		MediaDir:     mediaDir,
		MediaFS:      osfs.New(mediaDir),
	}, nil
}

func (p *Project) Close() error {
	return p.DB.Close()
}

// Ingest records the media of the project folder
func (p *Project) Ingest(ctx context.Context, jobs int) (*media.Report, error) {
	ingester := media.NewIngester(p.MediaFS, repository.NewMediaRepository(p.DB), jobs)
	report, err := ingester.Ingest(ctx, "/")
	if report != nil {
		log.Printf("Ingested %d images and %d videos from %s (%d unchanged, %d skipped, %d failed)",
			report.Images, report.Videos, p.MediaDir, report.Unchanged, report.Skipped, report.Failed)
	}
	return report, err
}

// initProject writes a sample config, the media folder and an empty database into dir
func initProject(dir string) error {
	configFile := filepath.Join(dir, "config.yaml")
	mediaDir := filepath.Join(dir, "media")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Printf("Creating default config: %s", configFile)
		if err := os.WriteFile(configFile, []byte(annotation.SampleConfig("media")), 0o644); err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
	} else {
		log.Printf("Configuration file already exists: %s", configFile)
	}

	if _, err := os.Stat(mediaDir); os.IsNotExist(err) {
		log.Printf("Creating media directory: %s", mediaDir)
		if err := os.MkdirAll(mediaDir, 0o755); err != nil {
			return fmt.Errorf("failed to create media directory: %w", err)
		}
	}

	log.Printf("Creating empty database: %s", filepath.Join(dir, annotation.DefaultDatabase))
	project, err := openProject(configFile)
	if err != nil {
		return err
	}
	return project.Close()
}
