package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pointsweep/internal/domain/model"
)

type accountsFile struct {
	Accounts []model.Account `yaml:"accounts"`
}

// LoadAccounts reads the accounts file. Order is preserved; the worker
// fan-out slices this list by position, so every process must see the same
// ordering.
func LoadAccounts(path string) ([]model.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	if len(file.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts in %s", path)
	}

	seen := make(map[string]struct{}, len(file.Accounts))
	for i, a := range file.Accounts {
		if a.Email == "" {
			return nil, fmt.Errorf("account %d: email is required", i)
		}
		if a.Password == "" {
			return nil, fmt.Errorf("account %s: password is required", a.Email)
		}
		if _, dup := seen[a.Email]; dup {
			return nil, fmt.Errorf("account %s listed twice", a.Email)
		}
		seen[a.Email] = struct{}{}
	}
	return file.Accounts, nil
}
