package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// SQLLoader reads tool profiles from the four normalized tables the store
// names: tools, tool_capabilities, tool_patterns, tool_intents.
type SQLLoader struct {
	DB *sqlx.DB
}

func NewSQLLoader(db *sqlx.DB) *SQLLoader {
	return &SQLLoader{DB: db}
}

type toolRow struct {
	ToolName    string `db:"tool_name"`
	Platform    string `db:"platform"`
	Category    string `db:"category"`
	Description string `db:"description"`
}

type capabilityRow struct {
	ToolName    string `db:"tool_name"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

type patternRow struct {
	ToolName     string  `db:"tool_name"`
	Name         string  `db:"name"`
	TimeMs       float64 `db:"time_ms"`
	Cost         float64 `db:"cost"`
	Accuracy     float64 `db:"accuracy"`
	Completeness float64 `db:"completeness"`
	Complexity   float64 `db:"complexity"`
	Limitations  string  `db:"limitations"` // comma-separated
}

type intentRow struct {
	ToolName string `db:"tool_name"`
	Category string `db:"category"`
	Action   string `db:"action"`
}

func (l *SQLLoader) LoadAll() ([]types.ToolProfile, error) {
	ctx := context.Background()

	var tools []toolRow
	if err := l.DB.SelectContext(ctx, &tools, `SELECT tool_name, platform, category, description FROM tools`); err != nil {
		return nil, errors.Wrap(err, "query tools")
	}

	byName := make(map[string]*types.ToolProfile, len(tools))
	order := make([]string, 0, len(tools))
	for _, t := range tools {
		byName[t.ToolName] = &types.ToolProfile{
			ToolName:    t.ToolName,
			Platform:    t.Platform,
			Category:    t.Category,
			Description: t.Description,
		}
		order = append(order, t.ToolName)
	}

	var caps []capabilityRow
	if err := l.DB.SelectContext(ctx, &caps, `SELECT tool_name, name, description FROM tool_capabilities`); err != nil {
		return nil, errors.Wrap(err, "query tool_capabilities")
	}
	for _, c := range caps {
		if p, ok := byName[c.ToolName]; ok {
			p.Capabilities = append(p.Capabilities, types.Capability{Name: c.Name, Description: c.Description})
		}
	}

	var patterns []patternRow
	if err := l.DB.SelectContext(ctx, &patterns, `SELECT tool_name, name, time_ms, cost, accuracy, completeness, complexity, limitations FROM tool_patterns`); err != nil {
		return nil, errors.Wrap(err, "query tool_patterns")
	}
	for _, pr := range patterns {
		if p, ok := byName[pr.ToolName]; ok {
			p.Patterns = append(p.Patterns, types.ToolPattern{
				Name: pr.Name,
				Vector: types.FeatureVector{
					TimeMs:       pr.TimeMs,
					Cost:         pr.Cost,
					Accuracy:     pr.Accuracy,
					Completeness: pr.Completeness,
					Complexity:   pr.Complexity,
					Limitations:  splitNonEmpty(pr.Limitations),
				},
			})
		}
	}

	var intents []intentRow
	if err := l.DB.SelectContext(ctx, &intents, `SELECT tool_name, category, action FROM tool_intents`); err != nil {
		return nil, errors.Wrap(err, "query tool_intents")
	}
	for _, ir := range intents {
		if p, ok := byName[ir.ToolName]; ok {
			p.IntentTags = append(p.IntentTags, types.IntentTag{Category: ir.Category, Action: ir.Action})
		}
	}

	profiles := make([]types.ToolProfile, 0, len(order))
	for _, name := range order {
		profiles = append(profiles, *byName[name])
	}
	return profiles, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
