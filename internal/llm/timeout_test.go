package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-intake/internal/documents"
)

type blockingGateway struct{}

func (blockingGateway) Classify(ctx context.Context, _ documents.Image, _ string) (string, error) {
	<-ctx.Done()
	return "", NewTransportError("test", OpClassify, ctx.Err())
}

func (blockingGateway) Extract(ctx context.Context, _ documents.Image, _ ResponseSchema, _ string) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, NewTransportError("test", OpExtract, ctx.Err())
}

func TestWithTimeoutBoundsEachCall(t *testing.T) {
	gw := WithTimeout(blockingGateway{}, 10*time.Millisecond)

	start := time.Now()
	_, err := gw.Classify(context.Background(), documents.Image{}, "prompt")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Timeout)
	assert.True(t, gwErr.Temporary())
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = gw.Extract(context.Background(), documents.Image{}, nil, "")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, OpExtract, gwErr.Op)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	base := &ScriptedGateway{}
	assert.Same(t, Gateway(base), WithTimeout(base, 0))
}
