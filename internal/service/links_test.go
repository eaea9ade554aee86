package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmpshare/internal/repository"
)

func TestStateAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	link := &repository.LinkRecord{ID: "l1", FileID: "f1", ExpiresAt: now.Add(time.Hour)}

	tests := []struct {
		name   string
		link   *repository.LinkRecord
		fileID string
		at     time.Time
		want   LinkState
	}{
		{name: "valid", link: link, fileID: "f1", at: now, want: LinkValid},
		{name: "one nanosecond before expiry", link: link, fileID: "f1", at: link.ExpiresAt.Add(-time.Nanosecond), want: LinkValid},
		{name: "expired at the boundary", link: link, fileID: "f1", at: link.ExpiresAt, want: LinkExpired},
		{name: "other file", link: link, fileID: "f2", at: now, want: LinkMismatched},
		{name: "unknown", link: nil, fileID: "f1", at: now, want: LinkUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateAt(tt.link, tt.fileID, tt.at))
		})
	}
}

func TestLinkService_CreateHoursBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)
	rec := env.upload(t, alice, "a.txt", []byte("a"))

	for _, hours := range []int{-1, 0, 721} {
		_, err := env.links.Create(ctx, alice, rec.ID, hours)
		require.ErrorIs(t, err, ErrValidation, "hours=%d", hours)
	}
	for _, hours := range []int{1, 720} {
		link, err := env.links.Create(ctx, alice, rec.ID, hours)
		require.NoError(t, err, "hours=%d", hours)
		assert.Equal(t, env.clock.Now().Add(time.Duration(hours)*time.Hour), link.ExpiresAt)
	}

	links, err := env.links.ListActive(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestLinkService_CreateAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)
	bob := env.user(t, "bob", repository.RoleUser)
	admin := env.user(t, "root", repository.RoleAdmin)
	rec := env.upload(t, alice, "a.txt", []byte("a"))

	_, err := env.links.Create(ctx, nil, rec.ID, 1)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.links.Create(ctx, bob, rec.ID, 1)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.links.Create(ctx, alice, "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.links.Create(ctx, admin, rec.ID, 1)
	require.NoError(t, err)
}

func TestLinkService_ExpiryIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)
	rec := env.upload(t, alice, "a.txt", []byte("a"))

	link, err := env.links.Create(ctx, alice, rec.ID, 25)
	require.NoError(t, err)
	start := env.clock.Now()

	state, err := env.links.ValidateForAccess(ctx, link.ID, rec.ID, start)
	require.NoError(t, err)
	assert.Equal(t, LinkValid, state)

	state, err = env.links.ValidateForAccess(ctx, link.ID, rec.ID, start.Add(25*time.Hour-time.Second))
	require.NoError(t, err)
	assert.Equal(t, LinkValid, state)

	for _, offset := range []time.Duration{25 * time.Hour, 26 * time.Hour, 1000 * time.Hour} {
		state, err = env.links.ValidateForAccess(ctx, link.ID, rec.ID, start.Add(offset))
		require.NoError(t, err)
		assert.Equal(t, LinkExpired, state, "offset=%s", offset)
	}

	state, err = env.links.ValidateForAccess(ctx, link.ID, "other-file", start)
	require.NoError(t, err)
	assert.Equal(t, LinkMismatched, state)

	state, err = env.links.ValidateForAccess(ctx, "nope", rec.ID, start)
	require.NoError(t, err)
	assert.Equal(t, LinkUnknown, state)
}

// 上传 report.pdf，创建 1 小时链接，匿名下载一次后时间推进 2 小时。
func TestLinkService_ShareScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	rec := env.upload(t, alice, "report.pdf", payload)

	link, err := env.links.Create(ctx, alice, rec.ID, 1)
	require.NoError(t, err)

	d, err := env.files.Download(ctx, nil, rec.ID, link.ID)
	require.NoError(t, err)
	assert.True(t, d.ViaLink)
	assert.Equal(t, payload, readAll(t, d))

	gotFile, err := env.fileRepo.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotFile.DownloadCount)
	gotLink, err := env.linkRepo.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotLink.DownloadCount)

	env.clock.Advance(2 * time.Hour)
	_, err = env.files.Download(ctx, nil, rec.ID, link.ID)
	require.ErrorIs(t, err, ErrAccessDenied)

	// 被拒绝的下载不计数
	gotFile, err = env.fileRepo.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotFile.DownloadCount)
}

func TestLinkService_LinkAccessFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)
	first := env.upload(t, alice, "a.txt", []byte("a"))
	second := env.upload(t, alice, "b.txt", []byte("b"))

	link, err := env.links.Create(ctx, alice, first.ID, 1)
	require.NoError(t, err)

	_, errMismatch := env.files.Download(ctx, nil, second.ID, link.ID)
	_, errUnknown := env.files.Download(ctx, nil, first.ID, "does-not-exist")
	_, errMissingFile := env.files.Download(ctx, nil, "missing-file", link.ID)

	for _, err := range []error{errMismatch, errUnknown, errMissingFile} {
		require.ErrorIs(t, err, ErrAccessDenied)
		assert.Equal(t, ErrAccessDenied.Error(), err.Error())
	}
}

func TestLinkService_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", repository.RoleUser)
	bob := env.user(t, "bob", repository.RoleUser)
	first := env.upload(t, alice, "a.txt", []byte("a"))
	second := env.upload(t, alice, "b.txt", []byte("b"))

	link, err := env.links.Create(ctx, alice, first.ID, 2)
	require.NoError(t, err)

	_, err = env.links.ListForFile(ctx, bob, first.ID)
	require.ErrorIs(t, err, ErrForbidden)

	links, err := env.links.ListForFile(ctx, alice, first.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, link.ID, links[0].ID)

	require.ErrorIs(t, env.links.Delete(ctx, bob, first.ID, link.ID), ErrForbidden)
	require.ErrorIs(t, env.links.Delete(ctx, alice, second.ID, link.ID), ErrNotFound)
	require.NoError(t, env.links.Delete(ctx, alice, first.ID, link.ID))
	require.ErrorIs(t, env.links.Delete(ctx, alice, first.ID, link.ID), ErrNotFound)

	_, err = env.files.Download(ctx, nil, first.ID, link.ID)
	require.ErrorIs(t, err, ErrAccessDenied)
}
