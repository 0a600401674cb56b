package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// toolDocument is the on-disk shape of one profile in the filesystem
// corpus: `*.yaml`/`*.yml` files under a directory, one tool per file.
type toolDocument struct {
	ToolName     string `yaml:"tool_name"`
	Platform     string `yaml:"platform"`
	Category     string `yaml:"category"`
	Description  string `yaml:"description"`
	Capabilities []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"capabilities"`
	Patterns []struct {
		Name string `yaml:"name"`
		Vector struct {
			TimeMs       float64  `yaml:"time_ms"`
			Cost         float64  `yaml:"cost"`
			Accuracy     float64  `yaml:"accuracy"`
			Completeness float64  `yaml:"completeness"`
			Complexity   float64  `yaml:"complexity"`
			Limitations  []string `yaml:"limitations"`
		} `yaml:"vector"`
	} `yaml:"patterns"`
	IntentTags []struct {
		Category string `yaml:"category"`
		Action   string `yaml:"action"`
	} `yaml:"intent_tags"`
}

func (d toolDocument) toProfile() types.ToolProfile {
	p := types.ToolProfile{
		ToolName:    d.ToolName,
		Platform:    d.Platform,
		Category:    d.Category,
		Description: d.Description,
	}
	for _, c := range d.Capabilities {
		p.Capabilities = append(p.Capabilities, types.Capability{Name: c.Name, Description: c.Description})
	}
	for _, pat := range d.Patterns {
		p.Patterns = append(p.Patterns, types.ToolPattern{
			Name: pat.Name,
			Vector: types.FeatureVector{
				TimeMs:       pat.Vector.TimeMs,
				Cost:         pat.Vector.Cost,
				Accuracy:     pat.Vector.Accuracy,
				Completeness: pat.Vector.Completeness,
				Complexity:   pat.Vector.Complexity,
				Limitations:  pat.Vector.Limitations,
			},
		})
	}
	for _, t := range d.IntentTags {
		p.IntentTags = append(p.IntentTags, types.IntentTag{Category: t.Category, Action: t.Action})
	}
	return p
}

// FilesystemLoader reads a directory of YAML tool-profile documents,
// tolerating either `.yaml` or `.yml` extensions.
type FilesystemLoader struct {
	Dir string
}

func NewFilesystemLoader(dir string) *FilesystemLoader {
	return &FilesystemLoader{Dir: dir}
}

func (l *FilesystemLoader) LoadAll() ([]types.ToolProfile, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool corpus directory %s: %w", l.Dir, err)
	}

	var profiles []types.ToolProfile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(l.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tool profile %s: %w", path, err)
		}
		var doc toolDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse tool profile %s: %w", path, err)
		}
		if doc.ToolName == "" {
			return nil, fmt.Errorf("tool profile %s is missing tool_name", path)
		}
		profiles = append(profiles, doc.toProfile())
	}
	return profiles, nil
}

// WatchAndReload starts an fsnotify watch on the corpus directory and
// reloads the catalog whenever a document is written or removed. It runs
// until ctx-independent stop is signalled via the returned function.
func WatchAndReload(cat *Catalog, loader *FilesystemLoader, logger *zap.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start catalog watcher: %w", err)
	}
	if err := watcher.Add(loader.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch catalog directory %s: %w", loader.Dir, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := cat.Reload(loader); err != nil {
					logger.Warn("catalog reload failed", zap.Error(err))
				} else {
					logger.Info("catalog reloaded", zap.String("path", event.Name))
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", zap.Error(werr))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
