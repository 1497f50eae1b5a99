// Package schema decodes a declarative TOML schema document into a
// catalog of tables, so table layouts can be defined outside the code
// that uses them.
package schema

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/mtsmys/cep-go/internal/catalog"
	"github.com/mtsmys/cep-go/internal/column"
)

// document is the top-level TOML shape:
//
//	[[tables]]
//	name = "daily"
//	  [[tables.columns]]
//	  name = "date"
//	  type = "DATETIME"
type document struct {
	Tables []tomlTable `toml:"tables"`
}

type tomlTable struct {
	Name    string       `toml:"name"`
	Columns []tomlColumn `toml:"columns"`
}

type tomlColumn struct {
	Name          string `toml:"name"`
	Type          string `toml:"type"`
	PrimaryKey    bool   `toml:"primary_key"`
	AutoIncrement bool   `toml:"auto_increment"`
	AllowNull     bool   `toml:"allow_null"`
	Unique        bool   `toml:"unique"`
}

// LoadFile reads a TOML schema document from path and returns the
// populated catalog.
func LoadFile(path string) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a TOML schema document from r and returns the populated
// catalog.
func Load(r io.Reader) (*catalog.Catalog, error) {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema: document has no tables")
	}

	cat := catalog.New()
	for _, t := range doc.Tables {
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("schema: table %q has no columns", t.Name)
		}
		list := column.NewList()
		for _, c := range t.Columns {
			typ, err := column.NormalizeType(c.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: table %q column %q: %w", t.Name, c.Name, err)
			}
			var opts []column.Option
			if c.PrimaryKey {
				opts = append(opts, column.WithPrimaryKey())
			}
			if c.AutoIncrement {
				opts = append(opts, column.WithAutoIncrement())
			}
			if c.AllowNull {
				opts = append(opts, column.WithAllowNull())
			}
			if c.Unique {
				opts = append(opts, column.WithUnique())
			}
			list.Append(c.Name, typ, opts...)
		}
		if err := cat.Upsert(t.Name, list); err != nil {
			return nil, fmt.Errorf("schema: table %q: %w", t.Name, err)
		}
	}
	return cat, nil
}
