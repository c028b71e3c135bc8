package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"section-studio-go/internal/model"
	"section-studio-go/internal/service"
	"section-studio-go/pkg/llm"
	"section-studio-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChat(t *testing.T, svc service.ConversationService, tokenFor func(*token.SessionVerifier) string) (*websocket.Conn, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	verifier := token.NewSessionVerifier("key", "secret")
	r := gin.New()
	r.GET("/chat/:token", NewChatHandler(svc, verifier).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + tokenFor(verifier)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func validToken(v *token.SessionVerifier) string {
	raw, _ := v.Issue("acme.myshopify.com", "42", time.Minute)
	return raw
}

func TestChatStreamsTurn(t *testing.T) {
	var (
		mu     sync.Mutex
		inputs []service.TurnInput
	)
	svc := &mockConversationService{
		AppendTurnFunc: func(_ context.Context, p model.Principal, in service.TurnInput, stream llm.MessageWriter) (*model.Conversation, error) {
			assert.Equal(t, testPrincipal, p)
			mu.Lock()
			inputs = append(inputs, in)
			mu.Unlock()
			if assert.NotNil(t, stream) {
				_ = stream.WriteMessage(websocket.TextMessage, []byte("<section>"))
			}
			return &model.Conversation{ID: "c1"}, nil
		},
	}
	conn, err := dialChat(t, svc, validToken)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hero","turnId":"t1"}`)))
	assert.Equal(t, "<section>", readFrame(t, conn)["chunk"])
	done := readFrame(t, conn)
	assert.Equal(t, "completion", done["type"])
	assert.Equal(t, "c1", done["conversationId"])

	// 纯文本消息继续当前对话
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("make it blue")))
	readFrame(t, conn)
	readFrame(t, conn)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, inputs, 2)
	assert.Equal(t, "", inputs[0].ConversationID)
	assert.Equal(t, "t1", inputs[0].TurnID)
	assert.Equal(t, service.TurnInput{ConversationID: "c1", Message: "make it blue"}, inputs[1])
}

func TestChatReportsGenerationFailure(t *testing.T) {
	svc := &mockConversationService{
		AppendTurnFunc: func(context.Context, model.Principal, service.TurnInput, llm.MessageWriter) (*model.Conversation, error) {
			return nil, &service.GenerationError{ConversationID: "c5", Err: errors.New("timeout")}
		},
	}
	conn, err := dialChat(t, svc, validToken)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hero")))
	errFrame := readFrame(t, conn)
	assert.NotEmpty(t, errFrame["error"])
	assert.Equal(t, "c5", errFrame["conversationId"])
	assert.Equal(t, "completion", readFrame(t, conn)["type"])
}

func TestChatRejectsInvalidToken(t *testing.T) {
	_, err := dialChat(t, &mockConversationService{}, func(*token.SessionVerifier) string { return "garbage" })
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestChatErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: message is required", service.ErrValidation), "消息不能为空"},
		{service.ErrNotFound, "对话不存在"},
		{service.ErrConflict, "对话已被其他请求更新，请重试"},
		{fmt.Errorf("%w: append messages: %w", service.ErrPersistence, errors.New("disk full")), "对话保存失败，请稍后重试"},
		{&service.GenerationError{ConversationID: "c1", Err: errors.New("timeout")}, "AI服务暂时不可用，请稍后重试"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chatErrorMessage(tt.err), tt.err.Error())
	}
}
