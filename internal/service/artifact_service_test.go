package service

import (
	"context"
	"fmt"
	"testing"

	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArtifactService(t *testing.T) *artifactService {
	t.Helper()
	svc := NewArtifactService(repository.NewArtifactRepository(newTestDB(t))).(*artifactService)
	svc.now = steppingClock()
	return svc
}

func TestCreateAndListArtifacts(t *testing.T) {
	svc := newArtifactService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateArtifact(ctx, "acme.myshopify.com", ArtifactInput{
			Name:    fmt.Sprintf("section %d", i),
			Content: "{% schema %}{}{% endschema %}",
		})
		require.NoError(t, err)
	}
	_, err := svc.CreateArtifact(ctx, "other.myshopify.com", ArtifactInput{Content: "x"})
	require.NoError(t, err)

	// 同一店铺的所有操作员看到同一份列表
	all, err := svc.ListArtifacts(ctx, "acme.myshopify.com", model.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "section 2", all[0].Name)
	assert.Equal(t, "section 0", all[2].Name)

	page, err := svc.ListArtifacts(ctx, "acme.myshopify.com", model.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "section 1", page[0].Name)

	none, err := svc.ListArtifacts(ctx, "empty.myshopify.com", model.Page{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCreateArtifactDefaultsAndValidation(t *testing.T) {
	svc := newArtifactService(t)
	ctx := context.Background()

	section, err := svc.CreateArtifact(ctx, "acme.myshopify.com", ArtifactInput{Name: "  ", Content: "<div></div>", ConversationID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, defaultArtifactName, section.Name)
	assert.Equal(t, "c-1", section.ConversationID)
	assert.NotEmpty(t, section.ID)

	_, err = svc.CreateArtifact(ctx, "acme.myshopify.com", ArtifactInput{Name: "empty", Content: " \n"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateArtifact(ctx, "", ArtifactInput{Content: "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.ListArtifacts(ctx, "", model.Page{})
	assert.ErrorIs(t, err, ErrValidation)
}

type recordingArtifactRepo struct {
	repository.ArtifactRepository
	page model.Page
}

func (r *recordingArtifactRepo) ListByShop(_ context.Context, _ string, page model.Page) ([]model.AISection, error) {
	r.page = page
	return []model.AISection{}, nil
}

func TestListArtifactsClampsPage(t *testing.T) {
	repo := &recordingArtifactRepo{}
	svc := NewArtifactService(repo)

	_, err := svc.ListArtifacts(context.Background(), "acme.myshopify.com", model.Page{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, model.Page{Limit: maxArtifactPageSize, Offset: 0}, repo.page)
}

func TestListArtifactsRejectsOffsetWithoutLimit(t *testing.T) {
	repo := &recordingArtifactRepo{}
	svc := NewArtifactService(repo)

	_, err := svc.ListArtifacts(context.Background(), "acme.myshopify.com", model.Page{Offset: 20})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ListArtifacts(context.Background(), "acme.myshopify.com", model.Page{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, model.Page{Limit: 10, Offset: 20}, repo.page)
}
