package catalog

import (
	"bufio"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/HITGYA/Mit-6.830/common"
)

// LoadSchema reads table definitions from a text file and registers every table that is not already
// in the catalog. Each non-blank line describes one table:
//
//	students (id int pk, name string, year int)
//
// Field types are int or string; a trailing pk marks the primary key. Lines starting with # are
// ignored. A table that already exists with the same columns is left alone; one that exists with
// different columns is a DuplicateObjectError.
func (c *Catalog) LoadSchema(path string) ([]*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open schema %s", path)
	}
	defer f.Close()

	var tables []*Table
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, columns, pkey, err := parseTableLine(line)
		if err != nil {
			return tables, pkgerrors.Wrapf(err, "%s:%d", path, lineNo)
		}

		if existing, err := c.GetTableMetadata(name); err == nil {
			if !sameColumns(existing.Columns, columns) {
				return tables, common.NewError(common.DuplicateObjectError,
					"%s:%d: table '%s' already exists with a different schema", path, lineNo, name)
			}
			tables = append(tables, existing)
			continue
		}

		t, err := c.AddTable(name, columns, pkey)
		if err != nil {
			return tables, err
		}
		tables = append(tables, t)
	}
	if err := scanner.Err(); err != nil {
		return tables, pkgerrors.Wrapf(err, "read schema %s", path)
	}
	return tables, nil
}

func parseTableLine(line string) (string, []Column, string, error) {
	open := strings.Index(line, "(")
	end := strings.LastIndex(line, ")")
	if open <= 0 || end < open {
		return "", nil, "", common.NewError(common.SchemaMismatchError, "malformed table definition %q", line)
	}
	name := strings.TrimSpace(line[:open])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", nil, "", common.NewError(common.SchemaMismatchError, "bad table name %q", name)
	}

	var columns []Column
	pkey := ""
	for _, field := range strings.Split(line[open+1:end], ",") {
		parts := strings.Fields(field)
		if len(parts) < 2 || len(parts) > 3 {
			return "", nil, "", common.NewError(common.SchemaMismatchError, "bad field definition %q in table %s", strings.TrimSpace(field), name)
		}
		t, err := common.ParseType(parts[1])
		if err != nil {
			return "", nil, "", err
		}
		if len(parts) == 3 {
			if !strings.EqualFold(parts[2], "pk") {
				return "", nil, "", common.NewError(common.SchemaMismatchError, "unknown annotation %q in table %s", parts[2], name)
			}
			if pkey != "" {
				return "", nil, "", common.NewError(common.SchemaMismatchError, "table %s has more than one primary key", name)
			}
			pkey = parts[0]
		}
		columns = append(columns, Column{Name: parts[0], Type: t})
	}
	return name, columns, pkey, nil
}

func sameColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
