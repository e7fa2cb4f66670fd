package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"recmirror/internal/database"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type CatalogConfig struct {
	Groups []struct {
		OwnerID   int64  `yaml:"owner_id"`
		SourceRef string `yaml:"source_ref"`
		Name      string `yaml:"name"`
		RepoName  string `yaml:"repo_name"`
		Records   []struct {
			SourceRef  string `yaml:"source_ref"`
			Name       string `yaml:"name"`
			IsExcluded bool   `yaml:"is_excluded"`
		} `yaml:"records"`
	} `yaml:"groups"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/recmirror.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var cfg CatalogConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(cfg.Groups) == 0 {
		return fmt.Errorf("no groups in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := db.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	byRef := make(map[string]int64, len(existing))
	for _, g := range existing {
		byRef[g.SourceRef] = g.ID
	}

	created := 0
	skipped := 0
	for _, g := range cfg.Groups {
		if g.SourceRef == "" {
			continue
		}
		groupID, ok := byRef[g.SourceRef]
		if !ok {
			group := &models.Group{
				OwnerID:   g.OwnerID,
				SourceRef: g.SourceRef,
				Name:      g.Name,
				RepoName:  g.RepoName,
			}
			if err = db.CreateGroup(ctx, group); err != nil {
				return fmt.Errorf("create group %s: %w", g.SourceRef, err)
			}
			groupID = group.ID
			byRef[g.SourceRef] = groupID
		}

		for _, r := range g.Records {
			if r.SourceRef == "" {
				continue
			}
			_, err = db.GetRecordBySourceRef(ctx, groupID, r.SourceRef)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("get %s: %w", r.SourceRef, err)
			}
			record := &models.Record{
				GroupID:    groupID,
				SourceRef:  r.SourceRef,
				Name:       r.Name,
				IsExcluded: r.IsExcluded,
			}
			if err = db.CreateRecord(ctx, record); err != nil {
				return fmt.Errorf("create %s: %w", r.SourceRef, err)
			}
			created++
		}
	}

	fmt.Printf("done: created=%d skipped=%d\n", created, skipped)
	return nil
}
