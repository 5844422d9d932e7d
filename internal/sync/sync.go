package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexisched/lexisched/internal/domain"
	"github.com/lexisched/lexisched/internal/fingerprint"
	"github.com/lexisched/lexisched/internal/gitsource"
	"github.com/lexisched/lexisched/internal/parser"
	"github.com/lexisched/lexisched/internal/schedule"
	"github.com/lexisched/lexisched/internal/storage"
)

// Run reconciles every deck source registered by ownerID into their cards:
// new deck entries become cards (recognized by content fingerprint), entries
// removed from the deck files delete their imported cards. Hand-created
// cards carry no source and are never touched. Git sources are pulled into
// reposDir first.
func Run(ctx context.Context, db *storage.DB, ownerID, reposDir string) error {
	slog.Info("starting deck sync", "owner", ownerID)
	sources, err := db.GetSourcesByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("no deck sources configured", "owner", ownerID)
		return nil
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		localPath := source.Path
		if source.Type == "git" {
			localPath, err = gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("error determining local path for deck repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localPath); err != nil {
				slog.Error("error syncing deck repo", "url", source.Path, "error", err)
				continue
			}
		}

		reconcileSource(ctx, db, ownerID, source, localPath)
	}
	slog.Info("deck sync complete", "owner", ownerID)
	return nil
}

func reconcileSource(ctx context.Context, db *storage.DB, ownerID string, source storage.Source, localPath string) {
	var parsed int
	var reconcileErrors []error
	foundFingerprints := make(map[string]bool)

	walkErr := filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".deck") {
			return nil
		}

		entries, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			reconcileErrors = append(reconcileErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, entry := range entries {
			fp := fingerprint.Hash(entry)
			parsed++
			foundFingerprints[fp] = true

			existing, findErr := db.FindByFingerprint(ctx, ownerID, fp)
			if findErr != nil {
				reconcileErrors = append(reconcileErrors, fmt.Errorf("db check for %s: %w", fp, findErr))
				continue
			}
			if existing != nil {
				continue
			}

			sourceID := source.ID
			card := domain.Flashcard{
				ID:          uuid.NewString(),
				OwnerID:     ownerID,
				FrontText:   entry.FrontText,
				BackText:    entry.BackText,
				Note:        entry.Note,
				Difficulty:  schedule.MinDifficulty,
				CreatedAt:   time.Now().UTC(),
				Fingerprint: fp,
				SourceID:    &sourceID,
			}
			slog.Info("new card found, inserting", "fingerprint", fp)
			if insertErr := db.CreateCard(ctx, card); insertErr != nil {
				reconcileErrors = append(reconcileErrors, fmt.Errorf("db insert for %s: %w", fp, insertErr))
			}
		}
		return nil
	})

	if walkErr != nil {
		slog.Error("error walking deck directory", "path", localPath, "error", walkErr)
		return
	}

	dbCards, err := db.ListBySource(ctx, source.ID)
	if err != nil {
		slog.Error("error getting cards for source", "source_id", source.ID, "error", err)
		return
	}

	var orphaned int
	for _, dbCard := range dbCards {
		if !foundFingerprints[dbCard.Fingerprint] {
			slog.Info("orphaned card, deleting", "id", dbCard.ID, "fingerprint", dbCard.Fingerprint)
			orphaned++
			if err := db.DeleteCard(ctx, dbCard.ID); err != nil {
				slog.Warn("failed to delete orphaned card", "id", dbCard.ID, "error", err)
			}
		}
	}

	if err := db.UpdateSourceLastScanned(ctx, source.ID); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", localPath,
		"parsed_cards", parsed,
		"orphaned_deleted", orphaned,
		"errors", len(reconcileErrors),
	)
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
