package storage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

//go:embed schema/mysql.sql
var mysqlSchema string

//go:embed schema/postgres.sql
var postgresSchema string

// splitStatements breaks a schema file into single statements, since neither
// driver is configured for multi-statement execution.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func marshalLineItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal line items: %w", err)
	}
	return b, nil
}

func unmarshalLineItems(b []byte) ([]domain.LineItem, error) {
	var items []domain.LineItem
	if len(b) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}
	return items, nil
}
