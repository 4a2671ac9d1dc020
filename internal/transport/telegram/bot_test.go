package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

func TestKeyboard(t *testing.T) {
	menu := keyboard([]string{"Relief", "Absent", "Event"})
	require.Len(t, menu.ReplyKeyboard, 2)
	assert.Equal(t, "Relief", menu.ReplyKeyboard[0][0].Text)
	assert.Equal(t, "Absent", menu.ReplyKeyboard[0][1].Text)
	assert.Len(t, menu.ReplyKeyboard[1], 1)
	assert.True(t, menu.OneTimeKeyboard)

	empty := keyboard(nil)
	assert.True(t, empty.RemoveKeyboard)
	assert.Empty(t, empty.ReplyKeyboard)
}

func TestAckMarkup(t *testing.T) {
	menu := ackMarkup(42)
	require.Len(t, menu.InlineKeyboard, 1)
	btn := menu.InlineKeyboard[0][0]
	assert.Equal(t, ackUnique, btn.Unique)
	assert.Equal(t, "42", btn.Data)

	id, err := parseAckData(btn.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestParseAckData_Rejects(t *testing.T) {
	for _, data := range []string{"", "abc", "-3", "0"} {
		_, err := parseAckData(data)
		assert.Error(t, err, data)
	}
}

func TestSplitHTML(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitHTML("short", 10))

	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	assert.Equal(t, []string{"aaaaaaaa", "bbbbbbbb"}, splitHTML(text, 10))

	chunks := splitHTML(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)
}

func TestConversationError(t *testing.T) {
	ctx := context.Background()
	assert.Contains(t, conversationError(ctx, core.ErrBusy), "Still working")
	assert.Contains(t, conversationError(ctx, core.ErrNotRegistered), "/start")
	assert.Contains(t, conversationError(ctx, &core.AuthorizationError{Have: core.RoleViewer, Need: core.RoleUploader}), "uploader role")
	assert.Equal(t, "Something went wrong, please try again.", conversationError(ctx, errors.New("disk full")))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Sarah Wong", displayName(&tele.User{FirstName: "Sarah", LastName: "Wong"}))
	assert.Equal(t, "Ann", displayName(&tele.User{FirstName: "Ann"}))
	assert.Equal(t, "swong", displayName(&tele.User{Username: "swong"}))
}

func TestCommandWithBody(t *testing.T) {
	got := commandWithBody("/massupload", []byte("\ufeffid,name,role\n1,A,viewer\n"))
	assert.Equal(t, "/massupload\nid,name,role\n1,A,viewer\n", got)
}
