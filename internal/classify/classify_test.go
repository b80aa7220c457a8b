package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
)

func TestPromptListsEveryLabel(t *testing.T) {
	for _, typ := range documents.Types {
		assert.Contains(t, Prompt(), string(typ))
	}
}

func TestClassifyNormalizesAnswer(t *testing.T) {
	tests := []struct {
		raw  string
		want documents.Type
	}{
		{raw: "National_ID_Front ", want: documents.NationalIDFront},
		{raw: "\nnational_id_back\n", want: documents.NationalIDBack},
		{raw: "HR_LETTER", want: documents.HRLetter},
		{raw: "utility_receipt", want: documents.UtilityReceipt},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			gw := (&llm.ScriptedGateway{}).QueueClassify(llm.Reply{Text: tt.raw})
			got, err := New(gw).Classify(context.Background(), documents.Image{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			calls := gw.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, Prompt(), calls[0].Prompt)
		})
	}
}

func TestClassifyRejectsUnknownLabels(t *testing.T) {
	for _, raw := range []string{"passport", "This looks like an hr_letter.", "", "hr letter"} {
		gw := (&llm.ScriptedGateway{}).QueueClassify(llm.Reply{Text: raw})
		_, err := New(gw).Classify(context.Background(), documents.Image{})

		var unknown *UnknownDocumentTypeError
		require.ErrorAs(t, err, &unknown, "raw=%q", raw)
		assert.Equal(t, raw, unknown.Raw)
	}
}

func TestClassifyPassesGatewayErrorsThrough(t *testing.T) {
	gwErr := &llm.GatewayError{Provider: "test", Op: llm.OpClassify, StatusCode: 503}
	gw := (&llm.ScriptedGateway{}).QueueClassify(llm.Reply{Err: gwErr})

	_, err := New(gw).Classify(context.Background(), documents.Image{})
	assert.True(t, errors.Is(err, gwErr))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"  Hr_Letter\t", "UTILITY_RECEIPT", "x"} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestUnknownDocumentTypeErrorTruncates(t *testing.T) {
	err := &UnknownDocumentTypeError{Raw: strings.Repeat("a", 200)}
	assert.Less(t, len(err.Error()), 120)
}

func TestUnknownDocumentTypeErrorKeepsWholeRunes(t *testing.T) {
	err := &UnknownDocumentTypeError{Raw: "x" + strings.Repeat("م", 100)}
	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.NotContains(t, msg, `\x`)
	assert.Contains(t, msg, strings.Repeat("م", 39)+"...")
}
