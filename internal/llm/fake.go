package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"loan-intake/internal/documents"
)

// ErrNoScript is returned by ScriptedGateway when a call has no queued answer.
var ErrNoScript = errors.New("scripted gateway: no response queued")

// Call records one request seen by ScriptedGateway.
type Call struct {
	Op           string
	Image        documents.Image
	Prompt       string
	Schema       ResponseSchema
	Instructions string
}

// Reply is one queued answer.
type Reply struct {
	Text string
	Err  error
}

// ScriptedGateway answers calls from per-operation queues. Tests across the
// pipeline use it in place of a real provider.
type ScriptedGateway struct {
	// OnCall, when set, runs after each call is recorded and before it answers.
	OnCall func(Call)

	mu       sync.Mutex
	classify []Reply
	extract  []Reply
	calls    []Call
}

// QueueClassify appends answers for subsequent Classify calls.
func (g *ScriptedGateway) QueueClassify(replies ...Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.classify = append(g.classify, replies...)
	return g
}

// QueueExtract appends answers for subsequent Extract calls.
func (g *ScriptedGateway) QueueExtract(replies ...Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extract = append(g.extract, replies...)
	return g
}

// Calls returns a copy of the recorded calls.
func (g *ScriptedGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// CountOp returns how many calls of op were made.
func (g *ScriptedGateway) CountOp(op string) int {
	n := 0
	for _, c := range g.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (g *ScriptedGateway) Classify(ctx context.Context, img documents.Image, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply, ok := g.record(Call{Op: OpClassify, Image: img, Prompt: prompt}, &g.classify)
	if !ok {
		return "", ErrNoScript
	}
	return reply.Text, reply.Err
}

func (g *ScriptedGateway) Extract(ctx context.Context, img documents.Image, schema ResponseSchema, instructions string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply, ok := g.record(Call{Op: OpExtract, Image: img, Schema: schema, Instructions: instructions}, &g.extract)
	if !ok {
		return nil, ErrNoScript
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return json.RawMessage(reply.Text), nil
}

func (g *ScriptedGateway) record(call Call, q *[]Reply) (Reply, bool) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	reply, ok := pop(q)
	hook := g.OnCall
	g.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return reply, ok
}

func pop(q *[]Reply) (Reply, bool) {
	if len(*q) == 0 {
		return Reply{}, false
	}
	r := (*q)[0]
	*q = (*q)[1:]
	return r, true
}

var _ Gateway = (*ScriptedGateway)(nil)
