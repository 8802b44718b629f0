package app

import (
	"fmt"

	"gitnotify/internal/catalog"
	"gitnotify/internal/config"
	"gitnotify/internal/settings"
	logx "gitnotify/pkg/logx"
)

// documents are the three operator-editable JSON files.
type documents struct {
	settings *settings.Store
	catalogs catalog.Stores
}

// openDocuments creates the stores and seeds any missing file from the
// packaged defaults. Existing files are left alone.
func openDocuments(cfg *config.Config, log logx.Logger) (documents, error) {
	log = log.With(logx.String("comp", "settings"))
	docs := documents{
		settings: settings.NewStore(cfg.Settings.SettingsPath, log),
		catalogs: catalog.Stores{
			catalog.GitHub: settings.NewStore(cfg.Settings.GitHubPath, log),
			catalog.GitLab: settings.NewStore(cfg.Settings.GitLabPath, log),
		},
	}

	if _, err := docs.settings.Seed(catalog.DefaultSettings()); err != nil {
		return documents{}, fmt.Errorf("seed settings: %w", err)
	}
	for _, p := range catalog.Platforms() {
		def, err := catalog.Defaults(p)
		if err != nil {
			return documents{}, err
		}
		if _, err := docs.catalogs[p].Seed(def); err != nil {
			return documents{}, fmt.Errorf("seed %s catalog: %w", p, err)
		}
		// Fail fast on a hand-edited catalog with bad names.
		if _, err := catalog.Load(docs.catalogs[p], p); err != nil {
			return documents{}, fmt.Errorf("%s catalog: %w", p, err)
		}
	}
	if _, err := docs.settings.Load(); err != nil {
		return documents{}, fmt.Errorf("settings: %w", err)
	}
	return docs, nil
}
