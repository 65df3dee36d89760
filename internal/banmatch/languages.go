package banmatch

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"raidbot/internal/domain"
)

//go:embed resources/languages.json
var embeddedLanguages embed.FS

// LoadLanguages reads the language weight table from path, or from the
// embedded copy when path is empty. Every formula is evaluated once so a bad
// table fails at startup instead of during a lobby.
func LoadLanguages(path string) (map[string]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = embeddedLanguages.ReadFile("resources/languages.json")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading language table: %w", err)
	}

	var rows []domain.LanguageWeight
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing language table: %w", err)
	}

	weights := make(map[string]string, len(rows))
	for _, row := range rows {
		if _, err := Evaluate(row.Weight); err != nil {
			return nil, fmt.Errorf("language %q: %w", row.Language, err)
		}
		weights[row.Language] = row.Weight
	}
	return weights, nil
}
