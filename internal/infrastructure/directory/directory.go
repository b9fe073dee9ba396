// Package directory maps accounts to the delivery method their
// confirmation codes go to, read from a YAML file.
package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/pkg/identitykey"
)

// MethodLookup reads verification methods. When configured, only methods
// that have been claimed are used for delivery.
type MethodLookup interface {
	GetMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error)
}

type file struct {
	Accounts map[string]entry `yaml:"accounts"`
}

type entry struct {
	Kind        string `yaml:"kind"`
	Destination string `yaml:"destination"`
}

// Directory resolves account ids to delivery methods.
type Directory struct {
	accounts map[string]domain.DeliveryMethod
	methods  MethodLookup
}

// Load reads path. methods may be nil.
func Load(path string, methods MethodLookup) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account methods: %w", err)
	}
	return Parse(data, methods)
}

// Parse builds a directory from YAML of the form
//
//	accounts:
//	  alice.near: {kind: email, destination: alice@example.com}
func Parse(data []byte, methods MethodLookup) (*Directory, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse account methods: %w", err)
	}
	d := &Directory{accounts: make(map[string]domain.DeliveryMethod, len(f.Accounts)), methods: methods}
	for account, e := range f.Accounts {
		kind, err := domain.ParseMethodKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account, err)
		}
		dest := strings.TrimSpace(e.Destination)
		if dest == "" {
			return nil, fmt.Errorf("account %s: empty destination: %w", account, domain.ErrConfiguration)
		}
		d.accounts[account] = domain.DeliveryMethod{Kind: kind, Destination: dest}
	}
	return d, nil
}

// Len reports how many accounts are configured.
func (d *Directory) Len() int { return len(d.accounts) }

func (d *Directory) Resolve(ctx context.Context, accountID string) (domain.DeliveryMethod, error) {
	m, ok := d.accounts[accountID]
	if !ok {
		return domain.DeliveryMethod{}, fmt.Errorf("no delivery method for account %s: %w", accountID, domain.ErrNotFound)
	}
	if d.methods == nil {
		return m, nil
	}
	vm, err := d.methods.GetMethod(ctx, identitykey.Normalize(m.Destination), m.Kind)
	if err != nil {
		return domain.DeliveryMethod{}, fmt.Errorf("delivery method for account %s: %w", accountID, err)
	}
	if !vm.Claimed {
		return domain.DeliveryMethod{}, fmt.Errorf("delivery method for account %s is not verified: %w", accountID, domain.ErrNotFound)
	}
	return m, nil
}
