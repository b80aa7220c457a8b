package llm

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusErrorTruncatesBody(t *testing.T) {
	body := []byte("  " + strings.Repeat("z", 600) + "  ")
	err := NewStatusError("gemini", OpExtract, http.StatusBadGateway, body)

	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.Equal(t, strings.Repeat("z", 512)+"...", err.Err.Error())
	assert.True(t, err.Temporary())
}

func TestNewStatusErrorKeepsWholeRunes(t *testing.T) {
	body := []byte("e" + strings.Repeat("خطأ", 200))
	err := NewStatusError("openai", OpClassify, http.StatusBadRequest, body)

	msg := err.Err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.LessOrEqual(t, len(msg), 512+len("..."))
	assert.True(t, utf8.ValidString(err.Error()))
}
