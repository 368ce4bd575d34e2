package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	"github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

func runScript(t *testing.T, script string) (*chat.Controller, string) {
	t.Helper()

	ctrl := chat.NewController(chat.NewStore(), ai.NewEchoEmitter(0, nil), nil)
	var out bytes.Buffer
	require.NoError(t, newREPL(ctrl, strings.NewReader(script), &out).Run(context.Background()))
	return ctrl, out.String()
}

func TestREPLSendRenamesChat(t *testing.T) {
	ctrl, out := runScript(t, "Hello\n/quit\n")

	assert.Contains(t, out, "== New Chat ==")
	assert.Contains(t, out, "assistant: Echo: Hello \n")
	assert.Contains(t, out, `(chat renamed to "Hello")`)

	title, err := ctrl.Store().Title(ctrl.Store().ActiveID())
	require.NoError(t, err)
	assert.Equal(t, "Hello", title)
}

func TestREPLDeleteLastChatWarns(t *testing.T) {
	ctrl, out := runScript(t, "/delete 1\n")

	assert.Contains(t, out, "warning: cannot delete the last chat")
	assert.Equal(t, 1, ctrl.Store().Len())
}

func TestREPLNewSelectDelete(t *testing.T) {
	ctrl, out := runScript(t, "first\n/new\n/list\n/select 2\n/delete 1\n/list\n")

	assert.Contains(t, out, "* 1. New Chat (0 messages)")
	assert.Contains(t, out, "  2. first (2 messages)")
	assert.Equal(t, 1, ctrl.Store().Len())

	title, err := ctrl.Store().Title(ctrl.Store().ActiveID())
	require.NoError(t, err)
	assert.Equal(t, "first", title)
}

func TestREPLBadSelection(t *testing.T) {
	_, out := runScript(t, "/select 9\n/select\n")

	assert.Contains(t, out, `no chat "9", see /list`)
	assert.Contains(t, out, "usage: /select N")
}
