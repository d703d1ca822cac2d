package crm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmbridge/sql-to-soql/lib/plog"
	"github.com/crmbridge/sql-to-soql/lib/salesforce"
	"github.com/crmbridge/sql-to-soql/lib/schema"
)

type fakeExecutor struct {
	lastSOQL string
	records  []salesforce.Record
	err      error
}

func (f *fakeExecutor) Query(_ context.Context, soql string) ([]salesforce.Record, error) {
	f.lastSOQL = soql
	return f.records, f.err
}

func newTestDatabase(t *testing.T, exec *fakeExecutor) *Database {
	t.Helper()
	store, err := schema.NewStore(map[string][]string{
		"Account": {"Id", "Name", "Industry", "OwnerId"},
	}, []schema.ForeignKey{{From: "Account.OwnerId", To: "User.Id"}})
	require.NoError(t, err)
	return NewDatabase(store, exec, plog.Nop{})
}

func TestCallTranslatesAndExecutes(t *testing.T) {
	exec := &fakeExecutor{records: []salesforce.Record{{"Id": "001", "Name": "Edge"}}}
	db := newTestDatabase(t, exec)

	out := db.Call(context.Background(), "ask_database",
		`{"query":"SELECT Name FROM Account WHERE Industry = 'Energy'"}`)

	assert.Equal(t, "SELECT Name, Id, OwnerId FROM Account WHERE Industry = 'Energy' LIMIT 5", exec.lastSOQL)
	assert.JSONEq(t, `[{"Id":"001","Name":"Edge"}]`, out)
}

func TestCallUnknownFunction(t *testing.T) {
	db := newTestDatabase(t, &fakeExecutor{})
	out := db.Call(context.Background(), "send_email", `{}`)
	assert.Equal(t, "Function send_email not supported.", out)
}

func TestCallBadArguments(t *testing.T) {
	db := newTestDatabase(t, &fakeExecutor{})
	out := db.Call(context.Background(), "ask_database", `{broken`)
	assert.Contains(t, out, "query failed with error:")
}

func TestCallTranslationFailure(t *testing.T) {
	exec := &fakeExecutor{}
	db := newTestDatabase(t, exec)
	out := db.Call(context.Background(), "ask_database", `{"query":"DELETE FROM Account"}`)
	assert.Contains(t, out, "query failed with error:")
	assert.Empty(t, exec.lastSOQL, "nothing should be executed on translation failure")
}

func TestCallExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("store is down")}
	db := newTestDatabase(t, exec)
	out := db.Call(context.Background(), "ask_database", `{"query":"SELECT Name FROM Account"}`)
	assert.Contains(t, out, "query failed with error: store is down")
}

func TestDefinitionsEmbedSchema(t *testing.T) {
	db := newTestDatabase(t, &fakeExecutor{})
	defs := db.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "ask_database", defs[0].Name)

	props := defs[0].Parameters["properties"].(map[string]any)
	desc := props["query"].(map[string]any)["description"].(string)
	assert.Contains(t, desc, "Table: Account")
	assert.Contains(t, desc, "Account.OwnerId=User.Id")
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt(&salesforce.UserInfo{
		Id: "005", Name: "Pat", Email: "pat@example.com", CompanyName: "Edge",
	})
	assert.Contains(t, prompt, `"name": "Pat"`)
	assert.Contains(t, prompt, `"UserId": "005"`)
	assert.NotContains(t, prompt, "\t")
}
