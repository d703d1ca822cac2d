// Package crm exposes the record store to the language model as a single
// callable: ask_database takes a fully formed SQL SELECT, which is translated
// to SOQL and executed remotely. Failures come back as text so the model can
// explain them instead of the process falling over.
package crm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crmbridge/sql-to-soql/lib/chat"
	"github.com/crmbridge/sql-to-soql/lib/plog"
	"github.com/crmbridge/sql-to-soql/lib/salesforce"
	"github.com/crmbridge/sql-to-soql/lib/schema"
	"github.com/crmbridge/sql-to-soql/lib/soql"
)

// askDatabase is the one function the model may call. The name is part of
// the model-facing contract; changing it invalidates deployed prompts.
const askDatabase = "ask_database"

// defaultRowLimit caps result sets when the model forgets a LIMIT. Chat
// answers rarely need more rows than this.
const defaultRowLimit = 5

// Executor runs a translated statement against the record store.
type Executor interface {
	Query(ctx context.Context, soql string) ([]salesforce.Record, error)
}

// Database implements chat.Functions over the schema store and the remote
// executor.
type Database struct {
	schema   *schema.Store
	executor Executor
	rowLimit int
	log      plog.Logger
}

// NewDatabase binds the schema store to the executor.
func NewDatabase(store *schema.Store, executor Executor, logger plog.Logger) *Database {
	if logger == nil {
		logger = plog.Nop{}
	}
	return &Database{
		schema:   store,
		executor: executor,
		rowLimit: defaultRowLimit,
		log:      logger,
	}
}

// Definitions declares ask_database with the schema description embedded in
// the parameter documentation, so the model writes SQL against real tables.
func (d *Database) Definitions() []chat.FunctionDef {
	return []chat.FunctionDef{{
		Name: askDatabase,
		Description: chat.TrimPrompt(`Use this function to answer user questions about accounts, contacts, and opportunities.
			Input should be a fully formed SQL query.`),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type": "string",
					"description": chat.TrimPrompt(fmt.Sprintf(`SQL SELECT extracting info to answer the user's question.
						SQL should be written using this database schema:
						%s
						The query should be returned in plain text, not in JSON.`,
						d.schema.Description())),
				},
			},
			"required": []string{"query"},
		},
	}}
}

// Call dispatches a function call by name.
func (d *Database) Call(ctx context.Context, name, arguments string) string {
	if name != askDatabase {
		return fmt.Sprintf("Function %s not supported.", name)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		d.log.Errorf("ask_database: bad arguments %q: %v", arguments, err)
		return fmt.Sprintf("query failed with error: %v", err)
	}
	return d.runQuery(ctx, args.Query)
}

func (d *Database) runQuery(ctx context.Context, sql string) string {
	d.log.Infof("SQL: %s", sql)

	result, err := soql.Translate(sql, soql.Options{
		Schema:       d.schema,
		EnsureID:     true,
		DefaultLimit: d.rowLimit,
	})
	if err != nil {
		d.log.Errorf("translation failed: %v", err)
		return fmt.Sprintf("query failed with error: %v", err)
	}
	d.log.Infof("SOQL: %s", result.SOQL)

	records, err := d.executor.Query(ctx, result.SOQL)
	if err != nil {
		d.log.Errorf("query failed: %v", err)
		return fmt.Sprintf("query failed with error: %v", err)
	}
	d.log.Infof("%s: %d rows returned", result.Table, len(records))

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Sprintf("query failed with error: %v", err)
	}
	return string(payload)
}

// SystemPrompt builds the chatbot system prompt, personalized with the
// authenticated user so the model can answer "my" questions.
func SystemPrompt(user *salesforce.UserInfo) string {
	return chat.TrimPrompt(fmt.Sprintf(`You answer questions about CRM data which you can do using SQL queries.
		You give short and to the point answers to the questions.

		The user talking to you has the following details:

		{ "name": %q, "email": %q, "company": %q, "phone": %q, "title": %q, "UserId": %q }

		You can use this information to fill in your answers if needed.`,
		user.Name, user.Email, user.CompanyName, user.Phone, user.Title, user.Id))
}
