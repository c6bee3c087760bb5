package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

type fakeSocial struct {
	dmErr    error
	replyErr error
	dms      []string
	replies  []string
}

func (f *fakeSocial) SendDM(_ context.Context, _ domain.Platform, _, message string) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.dms = append(f.dms, message)
	return nil
}

func (f *fakeSocial) ReplyToComment(_ context.Context, _ domain.Platform, _, message string) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, message)
	return nil
}

type fakeRepo struct {
	automations []domain.CommentAutomation
	listErr     error
	incremented []string
	incErr      error
}

func (f *fakeRepo) ListActive(context.Context, string, domain.Platform) ([]domain.CommentAutomation, error) {
	return f.automations, f.listErr
}

func (f *fakeRepo) IncrementTrigger(_ context.Context, id string) error {
	f.incremented = append(f.incremented, id)
	return f.incErr
}

type fakeChat struct {
	records []domain.ChatRecord
}

func (f *fakeChat) Record(_ context.Context, rec domain.ChatRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func bothAutomation() *domain.CommentAutomation {
	return &domain.CommentAutomation{
		ID:           "a1",
		IsActive:     true,
		Platform:     domain.PlatformBoth,
		ActionType:   domain.ActionBoth,
		DMMessage:    strptr("инбокс шалгаарай"),
		ReplyMessage: strptr("инбоксоо шалгана уу"),
	}
}

func testEvent() CommentEvent {
	return CommentEvent{
		ShopID:    "shop-1",
		Platform:  domain.PlatformFacebook,
		PostID:    "post-1",
		CommentID: "c1",
		UserID:    "u1",
		Text:      "үнэ?",
	}
}

func TestExecute_BothActionsSucceed(t *testing.T) {
	social := &fakeSocial{}
	repo := &fakeRepo{}
	chat := &fakeChat{}
	exec := NewExecutor(social, repo, chat, logger.NewNop())

	result := exec.Execute(context.Background(), bothAutomation(), testEvent())

	assert.True(t, result.DMSent)
	assert.True(t, result.ReplySent)
	assert.Equal(t, []string{"a1"}, repo.incremented)
	// One history record per execution, not one per delivered action.
	require.Len(t, chat.records, 1)
	assert.Equal(t, domain.RoleAssistant, chat.records[0].Role)
	assert.Equal(t, "automation", chat.records[0].Source)
	assert.Equal(t, "инбокс шалгаарай", chat.records[0].Message)
}

func TestExecute_DMFailureDoesNotBlockReply(t *testing.T) {
	social := &fakeSocial{dmErr: errors.New("graph api 500")}
	repo := &fakeRepo{}
	exec := NewExecutor(social, repo, &fakeChat{}, logger.NewNop())

	result := exec.Execute(context.Background(), bothAutomation(), testEvent())

	assert.False(t, result.DMSent)
	assert.True(t, result.ReplySent)
	// Trigger counter moves even on partial failure.
	assert.Equal(t, []string{"a1"}, repo.incremented)
}

func TestExecute_BothSendsFailStillIncrementsTrigger(t *testing.T) {
	social := &fakeSocial{dmErr: errors.New("dm down"), replyErr: errors.New("reply down")}
	repo := &fakeRepo{}
	exec := NewExecutor(social, repo, &fakeChat{}, logger.NewNop())

	result := exec.Execute(context.Background(), bothAutomation(), testEvent())

	assert.False(t, result.DMSent)
	assert.False(t, result.ReplySent)
	assert.Equal(t, []string{"a1"}, repo.incremented)
}

func TestExecute_BothSendsFailStillAppendsHistory(t *testing.T) {
	social := &fakeSocial{dmErr: errors.New("dm down"), replyErr: errors.New("reply down")}
	chat := &fakeChat{}
	exec := NewExecutor(social, &fakeRepo{}, chat, logger.NewNop())

	exec.Execute(context.Background(), bothAutomation(), testEvent())

	// Bookkeeping is unconditional: the record lands even when no send
	// went out.
	require.Len(t, chat.records, 1)
	assert.Equal(t, "automation", chat.records[0].Source)
}

func TestExecute_ActionTypeGatesSends(t *testing.T) {
	a := bothAutomation()
	a.ActionType = domain.ActionSendDM
	social := &fakeSocial{}
	exec := NewExecutor(social, &fakeRepo{}, &fakeChat{}, logger.NewNop())

	result := exec.Execute(context.Background(), a, testEvent())

	assert.True(t, result.DMSent)
	assert.False(t, result.ReplySent)
	assert.Empty(t, social.replies)
}

func TestExecute_MissingMessageSkipsAction(t *testing.T) {
	a := bothAutomation()
	a.DMMessage = nil
	social := &fakeSocial{}
	exec := NewExecutor(social, &fakeRepo{}, &fakeChat{}, logger.NewNop())

	result := exec.Execute(context.Background(), a, testEvent())

	assert.False(t, result.DMSent)
	assert.True(t, result.ReplySent)
}

func TestHandleComment_NoMatchReturnsNil(t *testing.T) {
	repo := &fakeRepo{automations: []domain.CommentAutomation{
		{ID: "a1", IsActive: true, Platform: domain.PlatformBoth, TriggerKeywords: []string{"хямдрал"}, MatchType: domain.KeywordMatchContains},
	}}
	exec := NewExecutor(&fakeSocial{}, repo, &fakeChat{}, logger.NewNop())

	result, err := exec.HandleComment(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, repo.incremented)
}

func TestHandleComment_MatchExecutes(t *testing.T) {
	a := *bothAutomation()
	a.TriggerKeywords = []string{"үнэ"}
	a.MatchType = domain.KeywordMatchContains
	repo := &fakeRepo{automations: []domain.CommentAutomation{a}}
	exec := NewExecutor(&fakeSocial{}, repo, &fakeChat{}, logger.NewNop())

	result, err := exec.HandleComment(context.Background(), testEvent())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.DMSent)
	assert.True(t, result.ReplySent)
}

func TestHandleComment_ListErrorPropagates(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("db gone")}
	exec := NewExecutor(&fakeSocial{}, repo, &fakeChat{}, logger.NewNop())

	_, err := exec.HandleComment(context.Background(), testEvent())
	assert.Error(t, err)
}
