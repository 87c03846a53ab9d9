package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns canned output or a canned error.
type scriptedClient struct {
	output string
	err    error
	// lastPrompt records what the oracle actually asked.
	lastPrompt string
}

func (s *scriptedClient) Generate(_ context.Context, prompt string, _ GenerationParams) (string, error) {
	s.lastPrompt = prompt
	return s.output, s.err
}

func TestClassifyConfirmation(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   ConfirmationVerdict
	}{
		{"clean json confirmed", `{"verdict":"confirmed"}`, VerdictConfirmed},
		{"clean json rejected", `{"verdict":"rejected"}`, VerdictRejected},
		{"fenced json", "Sure! Here you go:\n```json\n{\"verdict\":\"confirmed\"}\n```", VerdictConfirmed},
		{"garbage degrades", "the user probably means yes", VerdictIndecisive},
		{"unknown verdict degrades", `{"verdict":"maybe"}`, VerdictIndecisive},
		{"empty output degrades", "", VerdictIndecisive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOracles(&scriptedClient{output: tt.output})
			res, err := o.ClassifyConfirmation(context.Background(), "Você quis dizer Curso X?", "sim")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdict)
		})
	}
}

func TestClassifyConfirmationTransportError(t *testing.T) {
	o := NewOracles(&scriptedClient{err: errors.New("connection refused")})
	res, err := o.ClassifyConfirmation(context.Background(), "q", "sim")
	require.Error(t, err)
	assert.Equal(t, VerdictIndecisive, res.Verdict, "error path still carries the conservative verdict")
}

func TestClassifySelection(t *testing.T) {
	idx := 2
	tests := []struct {
		name   string
		output string
		want   SelectionResult
	}{
		{
			"picked second",
			`{"selected_index": 2, "is_selection": true, "is_new_question": false}`,
			SelectionResult{SelectedIndex: &idx, IsSelection: true},
		},
		{
			"new question",
			`{"selected_index": null, "is_selection": false, "is_new_question": true}`,
			SelectionResult{IsNewQuestion: true},
		},
		{
			"garbage degrades to no-selection",
			"I think they want the second one",
			SelectionResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{output: tt.output}
			o := NewOracles(client)
			res, err := o.ClassifySelection(context.Background(),
				[]string{"Curso A", "Curso B"}, "quero o curso", "o 2")
			require.NoError(t, err)
			if tt.want.SelectedIndex != nil {
				require.NotNil(t, res.SelectedIndex)
				assert.Equal(t, *tt.want.SelectedIndex, *res.SelectedIndex)
			} else {
				assert.Nil(t, res.SelectedIndex)
			}
			assert.Equal(t, tt.want.IsSelection, res.IsSelection)
			assert.Equal(t, tt.want.IsNewQuestion, res.IsNewQuestion)
			assert.Contains(t, client.lastPrompt, "1. Curso A")
			assert.Contains(t, client.lastPrompt, "2. Curso B")
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	o := NewOracles(&scriptedClient{
		output: `{"intent":"buy_question","confidence":0.93,"explicit_product_name":"Curso Avançado"}`,
	})
	res, err := o.ClassifyIntent(context.Background(), "quanto custa o Curso Avançado?")
	require.NoError(t, err)
	assert.Equal(t, "buy_question", res.Intent)
	assert.InDelta(t, 0.93, res.Confidence, 1e-9)
	assert.Equal(t, "Curso Avançado", res.ExplicitProductName)

	// Garbage degrades to "other" with zero confidence.
	o = NewOracles(&scriptedClient{output: "no idea"})
	res, err = o.ClassifyIntent(context.Background(), "oi")
	require.NoError(t, err)
	assert.Equal(t, "other", res.Intent)
	assert.Zero(t, res.Confidence)
}

func TestJudgePromisesConservativeDegrade(t *testing.T) {
	promises := []string{"garantia de 30 dias", "desconto de 50%"}

	// Unparseable output flags everything at high severity.
	o := NewOracles(&scriptedClient{output: "all looks fine to me"})
	res, err := o.JudgePromises(context.Background(), promises, []string{"7 day refund"})
	require.NoError(t, err)
	require.Len(t, res.Unauthorized, 2)
	for _, u := range res.Unauthorized {
		assert.Equal(t, "high", u.Severity)
	}

	// Transport failure does the same, with the error surfaced.
	o = NewOracles(&scriptedClient{err: errors.New("timeout")})
	res, err = o.JudgePromises(context.Background(), promises, nil)
	require.Error(t, err)
	assert.Len(t, res.Unauthorized, 2)
}

func TestJudgePromisesParsesVerdict(t *testing.T) {
	o := NewOracles(&scriptedClient{
		output: `{"unauthorized":[{"promise":"desconto de 50%","reason":"no such discount","severity":"high"}],"confidence":0.88}`,
	})
	res, err := o.JudgePromises(context.Background(),
		[]string{"desconto de 50%", "garantia de 7 dias"},
		[]string{"garantia de 7 dias"})
	require.NoError(t, err)
	require.Len(t, res.Unauthorized, 1)
	assert.Equal(t, "desconto de 50%", res.Unauthorized[0].Promise)
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
}

func TestParseOracleJSON(t *testing.T) {
	var out map[string]any
	require.NoError(t, parseOracleJSON(`prefix {"a":1} suffix`, &out))
	assert.EqualValues(t, 1, out["a"])

	assert.Error(t, parseOracleJSON("no braces here", &out))
	assert.Error(t, parseOracleJSON("} backwards {", &out))
}
