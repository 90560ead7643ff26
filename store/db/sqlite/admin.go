package sqlite

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/prodtalk/prodtalk/store"
)

func (d *DB) ListFilterRules(ctx context.Context) ([]*store.FilterRule, error) {
	query := `SELECT id, field_name, display_name, field_type, extraction_pattern,
			extraction_keywords, value_mapping, valid_values, validation_type,
			is_optional, multiple_allowed
		FROM filter_rule
		ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list filter rules")
	}
	defer rows.Close()

	var rules []*store.FilterRule
	for rows.Next() {
		var rule store.FilterRule
		var keywordsJSON, mappingJSON, validJSON string
		if err := rows.Scan(
			&rule.ID,
			&rule.FieldName,
			&rule.DisplayName,
			&rule.FieldType,
			&rule.ExtractionPattern,
			&keywordsJSON,
			&mappingJSON,
			&validJSON,
			&rule.ValidationType,
			&rule.IsOptional,
			&rule.MultipleAllowed,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan filter rule")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &rule.ExtractionKeywords); err != nil {
			return nil, errors.Wrapf(err, "malformed extraction_keywords for rule %q", rule.FieldName)
		}
		if err := json.Unmarshal([]byte(mappingJSON), &rule.ValueMapping); err != nil {
			return nil, errors.Wrapf(err, "malformed value_mapping for rule %q", rule.FieldName)
		}
		if err := json.Unmarshal([]byte(validJSON), &rule.ValidValues); err != nil {
			return nil, errors.Wrapf(err, "malformed valid_values for rule %q", rule.FieldName)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate filter rules")
	}
	return rules, nil
}

func (d *DB) ListTermMappings(ctx context.Context) ([]*store.TermMapping, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, user_expression, standard_term FROM term_mapping ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list term mappings")
	}
	defer rows.Close()

	var mappings []*store.TermMapping
	for rows.Next() {
		var mapping store.TermMapping
		if err := rows.Scan(&mapping.ID, &mapping.UserExpression, &mapping.StandardTerm); err != nil {
			return nil, errors.Wrap(err, "failed to scan term mapping")
		}
		mappings = append(mappings, &mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate term mappings")
	}
	return mappings, nil
}

func (d *DB) ListKnowledge(ctx context.Context) ([]*store.Knowledge, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, category, content FROM knowledge ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list knowledge")
	}
	defer rows.Close()

	var notes []*store.Knowledge
	for rows.Next() {
		var note store.Knowledge
		if err := rows.Scan(&note.ID, &note.Category, &note.Content); err != nil {
			return nil, errors.Wrap(err, "failed to scan knowledge")
		}
		notes = append(notes, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate knowledge")
	}
	return notes, nil
}

func (d *DB) ListSchemaTables(ctx context.Context) ([]*store.SchemaTable, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, description, columns FROM schema_table ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schema tables")
	}
	defer rows.Close()

	var tables []*store.SchemaTable
	for rows.Next() {
		var table store.SchemaTable
		var columnsJSON string
		if err := rows.Scan(&table.ID, &table.Name, &table.Description, &columnsJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema table")
		}
		if err := json.Unmarshal([]byte(columnsJSON), &table.Columns); err != nil {
			return nil, errors.Wrapf(err, "malformed columns for table %q", table.Name)
		}
		tables = append(tables, &table)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate schema tables")
	}
	return tables, nil
}

func (d *DB) ListReferenceLookups(ctx context.Context) ([]*store.ReferenceLookup, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, description, query FROM reference_lookup ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reference lookups")
	}
	defer rows.Close()

	var lookups []*store.ReferenceLookup
	for rows.Next() {
		var lookup store.ReferenceLookup
		if err := rows.Scan(&lookup.ID, &lookup.Name, &lookup.Description, &lookup.Query); err != nil {
			return nil, errors.Wrap(err, "failed to scan reference lookup")
		}
		lookups = append(lookups, &lookup)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate reference lookups")
	}
	return lookups, nil
}
