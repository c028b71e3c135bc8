package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"section-studio-go/internal/config"
	"section-studio-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjectStore) Put(_ context.Context, objectName string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, objectName, downloadName string, expiry time.Duration) (string, error) {
	return "https://minio.local/" + objectName + "?download=" + downloadName + "&ttl=" + expiry.String(), nil
}

func TestExportConversation(t *testing.T) {
	f := newConversationFixture(t, config.ConversationConfig{})
	ctx := context.Background()
	conv, err := f.svc.AppendTurn(ctx, alice, TurnInput{Message: "hero"}, nil)
	require.NoError(t, err)

	store := &fakeObjectStore{objects: map[string][]byte{}}
	svc := NewExportService(f.svc, store, 10*time.Minute)

	res, err := svc.ExportConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	wantObject := "exports/acme.myshopify.com/1/" + conv.ID + ".json"
	assert.Equal(t, wantObject, res.ObjectName)
	assert.Contains(t, res.URL, wantObject)
	assert.Contains(t, res.URL, "ttl=10m0s")

	var exported model.Conversation
	require.NoError(t, json.Unmarshal(store.objects[wantObject], &exported))
	assert.Equal(t, conv.ID, exported.ID)
	assert.Len(t, exported.Messages, 2)

	_, err = svc.ExportConversation(ctx, bob, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	store.putErr = errors.New("bucket unavailable")
	_, err = svc.ExportConversation(ctx, alice, conv.ID)
	assert.ErrorIs(t, err, ErrPersistence)
}
