package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type catalogFile struct {
	Framework string           `json:"framework" yaml:"framework"`
	Sections  []catalogSection `json:"sections" yaml:"sections"`
}

type catalogSection struct {
	Section     string            `json:"section" yaml:"section"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Framework   string            `json:"framework" yaml:"framework"`
	Items       []domain.Question `json:"items" yaml:"items"`
}

func isCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// loadDir reads every catalog file of dir in name order. A section seen again
// in a later file replaces the earlier one but keeps its list position.
func loadDir(dir string) (map[string]domain.Standard, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	standards := make(map[string]domain.Standard)
	order := make([]string, 0)
	for _, name := range names {
		file, err := parseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		for _, section := range file.Sections {
			std := toStandard(section, file.Framework, name)
			if std.Key == "" {
				continue
			}
			if _, seen := standards[std.Key]; !seen {
				order = append(order, std.Key)
			}
			standards[std.Key] = std
		}
	}
	return standards, order, nil
}

func parseFile(path string) (catalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalogFile{}, fmt.Errorf("read catalog file %s: %w", filepath.Base(path), err)
	}

	var file catalogFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return catalogFile{}, fmt.Errorf("decode catalog file %s: %w", filepath.Base(path), err)
	}
	return file, nil
}

func toStandard(section catalogSection, fileFramework, fileName string) domain.Standard {
	framework := section.Framework
	if framework == "" {
		framework = fileFramework
	}
	if framework == "" {
		framework = domain.DefaultFramework
	}

	items := make([]domain.Question, len(section.Items))
	for i, item := range section.Items {
		if item.Section == "" {
			item.Section = section.Section
		}
		items[i] = item
	}

	return domain.Standard{
		Key:         domain.StandardKey(section.Section),
		Section:     section.Section,
		Title:       section.Title,
		Description: section.Description,
		Framework:   framework,
		FileName:    fileName,
		Items:       items,
	}
}
