package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/agent/model"
)

type scriptedRunner struct {
	inputs []model.QueryInput
	err    error
}

func (r *scriptedRunner) Invoke(_ context.Context, in model.QueryInput) (*model.Reply, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return nil, r.err
	}
	id := in.SessionID
	if id == "" {
		id = "minted"
	}
	return &model.Reply{SessionID: id, Text: "answer to " + in.Text, Outcome: model.OutcomeAnswered, ExecutedSQL: "SELECT 1"}, nil
}

func TestAskCarriesTheSession(t *testing.T) {
	r := &scriptedRunner{}
	var out bytes.Buffer

	id, err := ask(context.Background(), &out, r, "", "  how many orders?  ")
	require.NoError(t, err)
	assert.Equal(t, "minted", id)

	id, err = ask(context.Background(), &out, r, id, "and last month?")
	require.NoError(t, err)
	assert.Equal(t, "minted", id)

	require.Len(t, r.inputs, 2)
	assert.Equal(t, model.QueryInput{SessionID: "", Text: "how many orders?"}, r.inputs[0])
	assert.Equal(t, "minted", r.inputs[1].SessionID)
	assert.Contains(t, out.String(), "answer to how many orders?\n")
	assert.Contains(t, out.String(), "session: minted  outcome: answered")
	assert.Contains(t, out.String(), "sql: SELECT 1")
}

func TestAskRejectsBlankText(t *testing.T) {
	r := &scriptedRunner{}
	_, err := ask(context.Background(), &bytes.Buffer{}, r, "s", "   ")
	require.Error(t, err)
	assert.Empty(t, r.inputs)
}

func TestAskKeepsSessionOnError(t *testing.T) {
	r := &scriptedRunner{err: errors.New("boom")}
	id, err := ask(context.Background(), &bytes.Buffer{}, r, "s1", "q")
	require.Error(t, err)
	assert.Equal(t, "s1", id)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ask", "index"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("catalog"))
}
