package collaborators

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// identifierPattern limits table and field names to plain SQL identifiers.
// Values are always bound as parameters; identifiers cannot be, so anything
// else is rejected before reaching the database.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQLStore reads and updates the hosted CRM tables in Postgres.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a CRM table store on an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) UpdateRow(ctx context.Context, table, id string, fields map[string]any) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	if len(fields) == 0 {
		return fmt.Errorf("no fields to update on %s", table)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if err := checkIdentifier(name); err != nil {
			return err
		}

		names = append(names, name)
	}

	sort.Strings(names)

	assignments := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)

	for i, name := range names {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", name, i+1))
		args = append(args, fields[name])
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(assignments, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s row %s: %w", table, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s row %s: %w", table, id, err)
	}

	if affected == 0 {
		return fmt.Errorf("no %s row with id %s", table, id)
	}

	return nil
}

func (s *SQLStore) FetchRows(ctx context.Context, table string, filters map[string]any) ([]map[string]any, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		if err := checkIdentifier(name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	sort.Strings(names)

	query := "SELECT * FROM " + table
	args := make([]any, 0, len(names))

	if len(names) > 0 {
		conditions := make([]string, 0, len(names))
		for i, name := range names {
			conditions = append(conditions, fmt.Sprintf("%s = $%d", name, i+1))
			args = append(args, filters[name])
		}

		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s columns: %w", table, err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			value := values[i]
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}

			row[column] = value
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}

	return results, nil
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}

	return nil
}
